package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/text"
)

var featuresOut string

// featuresCmd runs one-shot feature extraction over explicit files,
// outside manifest control. Useful for spot checks and replication.
var featuresCmd = &cobra.Command{
	Use:   "features <file> [file...]",
	Short: "Extract disclosure features from specific documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := initDict()
		if err != nil {
			return err
		}
		opts := text.Options{
			Extractor:        cfg.Text.Extractor,
			MinSentenceChars: cfg.Text.MinSentenceChars,
		}

		records := make([]model.FeatureRecord, 0, len(args))
		for _, path := range args {
			rec, err := text.FeaturesFromFile(path, d, opts)
			if err != nil {
				return eris.Wrapf(err, "extract %s", path)
			}
			records = append(records, rec)
		}

		out := os.Stdout
		if featuresOut != "" {
			f, err := os.Create(featuresOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", featuresOut)
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return eris.Wrap(err, "encode record")
			}
		}
		return nil
	},
}

// extractTextCmd converts one HTML document to plain text on stdout,
// using the configured extractor with the regex fallback.
var extractTextCmd = &cobra.Command{
	Use:   "extract-text <file>",
	Short: "Convert an HTML filing to plain text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		txt, err := text.ExtractFiling(string(raw), cfg.Text.Extractor)
		if err != nil {
			return eris.Wrapf(err, "extract %s", args[0])
		}
		_, err = os.Stdout.WriteString(txt + "\n")
		return err
	},
}

func init() {
	featuresCmd.Flags().StringVar(&featuresOut, "out", "", "write JSON Lines to this file instead of stdout")
	rootCmd.AddCommand(featuresCmd, extractTextCmd)
}
