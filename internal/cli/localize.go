package cli

import (
	"fmt"

	"github.com/me/stagehand/pkg/uri"
	"github.com/spf13/cobra"
)

func newLocalizeCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "localize <uri>",
		Short: "Mirror a file into a storage root",
		Long: "Copy a file to its mirrored path under the target storage root.\n" +
			"A file already on the target storage is returned as-is; an existing\n" +
			"copy at the target path is never overwritten.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, targetKind, err := parseTransferArgs(args[0], target)
			if err != nil {
				return err
			}

			svc, _, err := newService(cmd.Context())
			if err != nil {
				return err
			}

			localized, err := svc.Localize(cmd.Context(), source, targetKind)
			if err != nil {
				return fmt.Errorf("localize: %w", err)
			}
			fmt.Println(localized)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "local", "Target storage kind (local, gcs, s3)")
	return cmd
}

func newDeepcopyCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "deepcopy <manifest>",
		Short: "Localize a manifest and every file it references",
		Long: "Recursively copy a .json, .tsv, or .csv manifest and all file URIs\n" +
			"inside it onto the target storage, then print the URI of the rewritten\n" +
			"manifest whose entries point at the copies.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, targetKind, err := parseTransferArgs(args[0], target)
			if err != nil {
				return err
			}
			if !source.Deepcopyable() {
				return fmt.Errorf("%s is not a deepcopy manifest (.json, .tsv, or .csv)", source)
			}

			svc, _, err := newService(cmd.Context())
			if err != nil {
				return err
			}

			rewritten, err := svc.Deepcopy(cmd.Context(), source, targetKind)
			if err != nil {
				return fmt.Errorf("deepcopy: %w", err)
			}
			localized, err := svc.Localize(cmd.Context(), rewritten, targetKind)
			if err != nil {
				return fmt.Errorf("deepcopy: %w", err)
			}
			fmt.Println(localized)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "local", "Target storage kind (local, gcs, s3)")
	return cmd
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <source> <target>",
		Short: "Copy a file to an explicit target URI",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := uri.Parse(args[0])
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			target, err := uri.Parse(args[1])
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}

			svc, _, err := newService(cmd.Context())
			if err != nil {
				return err
			}

			if err := svc.CopyTo(cmd.Context(), source, target); err != nil {
				return fmt.Errorf("copy: %w", err)
			}
			fmt.Println(target)
			return nil
		},
	}
}

// parseTransferArgs validates the source URI and target kind shared by
// localize and deepcopy.
func parseTransferArgs(rawURI, rawTarget string) (uri.URI, uri.Kind, error) {
	source, err := uri.Parse(rawURI)
	if err != nil {
		return uri.URI{}, 0, err
	}
	targetKind, err := uri.ParseKind(rawTarget)
	if err != nil {
		return uri.URI{}, 0, err
	}
	if targetKind == uri.URL {
		return uri.URI{}, 0, fmt.Errorf("cannot localize to a URL")
	}
	return source, targetKind, nil
}
