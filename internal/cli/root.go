package cli

import (
	"log/slog"

	"github.com/me/stagehand/internal/config"
	"github.com/me/stagehand/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	cfg    config.Config
)

// NewRootCmd creates the root cobra command for the stagehand CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stagehand",
		Short: "stagehand — cross-storage input staging for workflow engines",
		Long: "stagehand mirrors files between local disk, GCS, S3, and HTTP sources,\n" +
			"rewrites input manifests to point at the copies, and submits workflows\n" +
			"to a Cromwell-compatible engine.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)

			var err error
			cfg, err = config.Load(flagConfig)
			return err
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.stagehand/config.yaml)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newLocalizeCmd(),
		newDeepcopyCmd(),
		newCopyCmd(),
		newSubmitCmd(),
		newListCmd(),
		newMetadataCmd(),
		newAbortCmd(),
		newBackendsCmd(),
		newInfoCmd(),
	)

	return root
}
