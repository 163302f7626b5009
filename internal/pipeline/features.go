package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/stage"
	"github.com/sells-group/disclosure-cli/internal/text"
)

type featureFailure struct {
	CIK        string `json:"cik"`
	FilingYear int    `json:"filing_year"`
	Path       string `json:"path"`
	Error      string `json:"error"`
}

type featuresQC struct {
	Documents         int              `json:"documents"`
	Extracted         int              `json:"extracted"`
	Failed            int              `json:"failed"`
	DictionaryVersion string           `json:"dictionary_version"`
	DictionarySHA256  string           `json:"dictionary_sha256"`
	Failures          []featureFailure `json:"failures,omitempty"`
}

// FeaturesStage classifies every downloaded filing sentence-by-sentence
// and writes one FeatureRecord per document as JSON Lines. Documents are
// processed concurrently but emitted in index order so the output is
// byte-stable across runs.
func (p *Pipeline) FeaturesStage() stage.Stage {
	inputs := []string{p.filingsPath()}
	if p.cfg.Text.DictionaryPath != "" {
		inputs = append(inputs, p.cfg.Text.DictionaryPath)
	}
	return &stage.Func{
		StageName:   "sec_features",
		InputPaths:  inputs,
		OutputPaths: []string{p.featuresPath()},
		Body:        p.runFeatures,
	}
}

func (p *Pipeline) runFeatures(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "sec_features"))

	var filings []DownloadedFiling
	if err := readJSON(p.filingsPath(), &filings); err != nil {
		return err
	}

	opts := text.Options{
		Extractor:        p.cfg.Text.Extractor,
		MinSentenceChars: p.cfg.Text.MinSentenceChars,
	}

	workers := p.cfg.Runtime.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	records := make([]*model.FeatureRecord, len(filings))
	failures := make([]*featureFailure, len(filings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range filings {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := text.FeaturesFromFile(f.LocalPath, p.dict, opts)
			if err != nil {
				// One bad document must not sink the batch; invariant
				// violations are the exception since they indicate a
				// classifier bug, not bad input.
				if eris.Is(err, text.ErrInvariant) {
					return err
				}
				failures[i] = &featureFailure{
					CIK:        f.CIK,
					FilingYear: f.FilingYear,
					Path:       f.LocalPath,
					Error:      err.Error(),
				}
				log.Warn("features: document failed",
					zap.String("path", f.LocalPath), zap.Error(err))
				return nil
			}
			rec.CIK = f.CIK
			rec.FilingYear = f.FilingYear
			records[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "features: extraction")
	}

	qc := featuresQC{
		Documents:         len(filings),
		DictionaryVersion: p.dict.Version,
		DictionarySHA256:  p.dict.SHA256,
	}
	kept := make([]model.FeatureRecord, 0, len(filings))
	for i := range filings {
		if records[i] != nil {
			kept = append(kept, *records[i])
			qc.Extracted++
		}
		if failures[i] != nil {
			qc.Failures = append(qc.Failures, *failures[i])
			qc.Failed++
		}
	}
	if len(filings) > 0 && qc.Extracted == 0 {
		return eris.Errorf("features: all %d documents failed extraction", len(filings))
	}

	if err := writeFeatureJSONL(p.featuresPath(), kept); err != nil {
		return err
	}
	if err := writeJSON(p.qcPath("sec_features"), qc); err != nil {
		return err
	}

	if p.store != nil && len(kept) > 0 {
		if err := p.store.SaveFeatures(ctx, p.runID, kept); err != nil {
			return eris.Wrap(err, "features: persist records")
		}
	}

	log.Info("features: extraction complete",
		zap.Int("documents", qc.Documents),
		zap.Int("extracted", qc.Extracted),
		zap.Int("failed", qc.Failed))
	return nil
}

// writeFeatureJSONL writes one compact JSON object per line, atomically.
func writeFeatureJSONL(path string, recs []model.FeatureRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "features: create dir for %s", path)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "features: create %s", tmp)
	}
	enc := json.NewEncoder(f)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return eris.Wrap(err, "features: encode record")
		}
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "features: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "features: rename %s", path)
	}
	return nil
}

// readFeatureJSONL reads the per-document records back for downstream
// stages.
func readFeatureJSONL(path string) ([]model.FeatureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "features: open %s", path)
	}
	defer f.Close()

	var out []model.FeatureRecord
	dec := json.NewDecoder(f)
	for dec.More() {
		var r model.FeatureRecord
		if err := dec.Decode(&r); err != nil {
			return nil, eris.Wrapf(err, "features: parse %s", path)
		}
		out = append(out, r)
	}
	return out, nil
}

// featureRow renders a record in model.SummaryColumns order.
func featureRow(r model.FeatureRecord) []string {
	return []string{
		r.CIK,
		strconv.Itoa(r.FilingYear),
		r.InputPath,
		r.InputSHA256,
		r.DictionarySHA256,
		r.DictionaryVersion,
		strconv.Itoa(r.SentencesTotal),
		strconv.Itoa(r.SentencesEnv),
		strconv.Itoa(r.SentencesAspirational),
		strconv.Itoa(r.SentencesKPI),
		strconv.Itoa(r.EnvWordCount),
		formatFloat(r.AShare),
		formatFloat(r.QShare),
		formatFloat(r.SISimple()),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
