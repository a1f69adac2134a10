package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/me/stagehand/internal/bundle"
	"github.com/me/stagehand/internal/engine"
	"github.com/me/stagehand/pkg/model"
	"github.com/me/stagehand/pkg/uri"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		inputsURI   string
		optionsFile string
		labels      map[string]string
		target      string
		hold        bool
		noDeepcopy  bool
	)

	cmd := &cobra.Command{
		Use:   "submit <workflow>",
		Short: "Submit a workflow to the engine",
		Long: "Localize a workflow's input manifest onto the target storage, zip its\n" +
			"sub-workflow imports, and submit everything to the workflow engine.\n" +
			"The run is recorded in the local run history.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			workflowPath := args[0]

			source, err := os.ReadFile(workflowPath)
			if err != nil {
				return fmt.Errorf("read workflow: %w", err)
			}

			deps, err := bundle.Zip(workflowPath)
			if err != nil {
				return err
			}
			if deps != nil {
				logger.Info("zipped sub-workflow imports", "workflow", workflowPath, "bytes", len(deps))
			}

			req := engine.SubmitRequest{
				Source:       string(source),
				Labels:       labels,
				Dependencies: deps,
				OnHold:       hold,
			}

			var localizedInputs uri.URI
			if inputsURI != "" {
				inputs, targetKind, err := parseTransferArgs(inputsURI, target)
				if err != nil {
					return err
				}

				svc, reg, err := newService(ctx)
				if err != nil {
					return err
				}

				localizedInputs = inputs
				if inputs.Deepcopyable() && !noDeepcopy {
					rewritten, err := svc.Deepcopy(ctx, inputs, targetKind)
					if err != nil {
						return fmt.Errorf("deepcopy inputs: %w", err)
					}
					localizedInputs, err = svc.Localize(ctx, rewritten, targetKind)
					if err != nil {
						return fmt.Errorf("localize inputs: %w", err)
					}
				}

				adapter, err := reg.For(localizedInputs.Kind())
				if err != nil {
					return err
				}
				text, err := adapter.ReadText(ctx, localizedInputs)
				if err != nil {
					return fmt.Errorf("read inputs: %w", err)
				}
				req.Inputs = text
			}

			if optionsFile != "" {
				opts, err := os.ReadFile(optionsFile)
				if err != nil {
					return fmt.Errorf("read options: %w", err)
				}
				req.Options = string(opts)
			}

			engineID, err := newEngine().Submit(ctx, req)
			if err != nil {
				return err
			}

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			now := time.Now().UTC()
			run := &model.Run{
				ID:          uuid.New().String(),
				EngineID:    engineID,
				Workflow:    workflowPath,
				Inputs:      inputsURI,
				State:       model.RunSubmitted,
				Labels:      labels,
				SubmittedAt: now,
				UpdatedAt:   now,
			}
			if !localizedInputs.IsZero() {
				run.LocalizedInputs = localizedInputs.String()
				run.TargetKind = localizedInputs.Kind().Tag()
			}
			if err := st.CreateRun(ctx, run); err != nil {
				return fmt.Errorf("record run: %w", err)
			}

			fmt.Printf("Run %s submitted (engine id %s)\n", run.ID, engineID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputsURI, "inputs", "i", "", "Input manifest URI (.json, .tsv, or .csv)")
	cmd.Flags().StringVarP(&optionsFile, "options", "o", "", "Workflow options file")
	cmd.Flags().StringToStringVarP(&labels, "label", "l", nil, "Labels as key=value (repeatable)")
	cmd.Flags().StringVar(&target, "target", "local", "Storage kind inputs are localized to (local, gcs, s3)")
	cmd.Flags().BoolVar(&hold, "hold", false, "Submit the workflow on hold")
	cmd.Flags().BoolVar(&noDeepcopy, "no-deepcopy", false, "Submit the input manifest without localizing its contents")
	return cmd
}
