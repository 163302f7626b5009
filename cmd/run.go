package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/store"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline, skipping stages whose inputs are unchanged",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline()
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		if err := env.Store.CreateRun(ctx, env.RunID); err != nil {
			return eris.Wrap(err, "record run")
		}

		results, runErr := env.Runner.RunAll(ctx, env.Pipeline.Stages(), runForce)

		status := store.RunStatusComplete
		if runErr != nil {
			status = store.RunStatusFailed
		}
		if err := env.Store.FinishRun(ctx, env.RunID, status); err != nil {
			zap.L().Warn("finish run failed", zap.Error(err))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return eris.Wrap(err, "encode results")
		}
		if runErr != nil {
			return eris.Wrap(runErr, "pipeline run")
		}

		zap.L().Info("pipeline complete",
			zap.String("run_id", env.RunID),
			zap.Int("stages", len(results)))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-run every stage even when inputs are unchanged")
	rootCmd.AddCommand(runCmd)
}
