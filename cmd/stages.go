package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/disclosure-cli/internal/stage"
)

// stagesCmd prints the recorded manifest of every stage: status, run id,
// and input/output fingerprints.
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Show per-stage manifest status",
	RunE: func(cmd *cobra.Command, args []string) error {
		manifests, err := stage.NewManifestStore(cfg.Paths.ManifestsDir()).All()
		if err != nil {
			return eris.Wrap(err, "read manifests")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifests)
	},
}

// runsCmd lists recorded pipeline runs from the store.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		runs, err := st.ListRuns(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd, runsCmd)
}
