package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/me/stagehand/internal/store"
	"github.com/me/stagehand/pkg/model"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		state  string
		limit  int
		offset int
		sync   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if sync {
				if err := syncRunStates(ctx, st); err != nil {
					logger.Warn("failed to refresh run states from engine", "error", err)
				}
			}

			runs, total, err := st.ListRuns(ctx, model.ListOptions{
				State:  model.RunState(state),
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			fmt.Printf("%-36s  %-36s  %-10s  %-30s  %s\n", "ID", "ENGINE_ID", "STATE", "WORKFLOW", "SUBMITTED")
			for _, run := range runs {
				fmt.Printf("%-36s  %-36s  %-10s  %-30s  %s\n",
					run.ID, run.EngineID, run.State, run.Workflow,
					run.SubmittedAt.Format(time.RFC3339))
			}
			if total > len(runs) {
				fmt.Printf("\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (Submitted, Running, Succeeded, Failed, Aborted)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs to show (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	cmd.Flags().BoolVar(&sync, "sync", false, "Refresh non-terminal run states from the engine first")
	return cmd
}

// syncRunStates asks the engine for the current status of every
// non-terminal run and records changes.
func syncRunStates(ctx context.Context, st *store.SQLiteStore) error {
	runs, _, err := st.ListRuns(ctx, model.ListOptions{})
	if err != nil {
		return err
	}

	client := newEngine()
	for _, run := range runs {
		if run.State.Terminal() || run.EngineID == "" {
			continue
		}
		resp, err := client.Query(ctx, url.Values{"id": {run.EngineID}})
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			continue
		}
		state := model.RunState(resp.Results[0].Status)
		if state == run.State {
			continue
		}
		run.State = state
		run.UpdatedAt = time.Now().UTC()
		if err := st.UpdateRun(ctx, run); err != nil {
			return err
		}
		logger.Debug("run state updated", "run_id", run.ID, "state", state)
	}
	return nil
}

func newMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <run_id>",
		Short: "Print a run's engine metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			run, st, err := lookupRun(ctx, args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			md, err := newEngine().Metadata(ctx, run.EngineID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "    ")
			return enc.Encode(md)
		},
	}
}

func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <run_id>",
		Short: "Abort a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			run, st, err := lookupRun(ctx, args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			if err := newEngine().Abort(ctx, run.EngineID); err != nil {
				return err
			}

			run.State = model.RunAborted
			run.UpdatedAt = time.Now().UTC()
			if err := st.UpdateRun(ctx, run); err != nil {
				return fmt.Errorf("record aborted state: %w", err)
			}
			fmt.Printf("Run %s aborted\n", run.ID)
			return nil
		},
	}
}

// lookupRun resolves an ID against the run history, accepting either
// the wrapper-local ID or the engine-assigned one. The caller owns
// the returned store.
func lookupRun(ctx context.Context, id string) (*model.Run, *store.SQLiteStore, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	run, err := st.GetRun(ctx, id)
	if err == nil && run == nil {
		run, err = st.GetRunByEngineID(ctx, id)
	}
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if run == nil {
		st.Close()
		return nil, nil, fmt.Errorf("run %q not found", id)
	}
	return run, st, nil
}
