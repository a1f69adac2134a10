package cli

import (
	"fmt"
	"strings"

	"github.com/me/stagehand/internal/heartbeat"
	"github.com/spf13/cobra"
)

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the engine's compute backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newEngine().Backends(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Default backend: %s\n", resp.DefaultBackend)
			fmt.Printf("Supported:       %s\n", strings.Join(resp.SupportedBackends, ", "))
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the running stagehand server, if any",
		Long: "Read the server heartbeat file and print the hostname and port of a\n" +
			"live stagehand server. A stale heartbeat means the server is gone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			hostname, port, err := heartbeat.Read(cfg.HeartbeatFile, 0)
			if err != nil {
				return err
			}
			fmt.Printf("Server: %s:%d\n", hostname, port)
			return nil
		},
	}
}
