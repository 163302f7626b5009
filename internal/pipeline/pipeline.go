// Package pipeline assembles the research pipeline stages: SEC filing
// download, sentence-level feature extraction, EPA facility data, linkage,
// panel assembly and analysis. Each stage declares its input and output
// paths so the stage runner can skip work whose inputs have not changed.
package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/config"
	"github.com/sells-group/disclosure-cli/internal/dict"
	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/stage"
	"github.com/sells-group/disclosure-cli/internal/store"
)

// Pipeline holds the shared dependencies of all stages.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	fetch fetcher.Fetcher
	dict  *dict.Dictionary
	runID string
}

// New creates a Pipeline. The store may be nil, in which case feature
// records are only written to disk.
func New(cfg *config.Config, st store.Store, f fetcher.Fetcher, d *dict.Dictionary, runID string) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, fetch: f, dict: d, runID: runID}
}

// Stages returns all pipeline stages in execution order.
func (p *Pipeline) Stages() []stage.Stage {
	return []stage.Stage{
		p.DoctorStage(),
		p.SECDownloadStage(),
		p.FeaturesStage(),
		p.GHGRPStage(),
		p.EchoStage(),
		p.LinkageStage(),
		p.PanelStage(),
		p.AnalysisStage(),
	}
}

// StageNames returns the declared stage order.
func (p *Pipeline) StageNames() []string {
	stages := p.Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}

// Interim and processed artifact paths. Stages communicate exclusively
// through these files; nothing is passed in memory between stages.

func (p *Pipeline) filingsPath() string {
	return filepath.Join(p.cfg.Paths.InterimDir(), "filings.json")
}

func (p *Pipeline) universePath() string {
	return filepath.Join(p.cfg.Paths.InterimDir(), "universe.json")
}

func (p *Pipeline) ghgrpPath() string {
	return filepath.Join(p.cfg.Paths.InterimDir(), "ghgrp.json")
}

func (p *Pipeline) echoPath() string {
	return filepath.Join(p.cfg.Paths.InterimDir(), "echo.json")
}

func (p *Pipeline) featuresPath() string {
	return filepath.Join(p.cfg.Paths.ProcessedDir(), "features.jsonl")
}

func (p *Pipeline) linkagePath() string {
	return filepath.Join(p.cfg.Paths.ProcessedDir(), "linkage.csv")
}

func (p *Pipeline) panelPath() string {
	return filepath.Join(p.cfg.Paths.ProcessedDir(), "panel.csv")
}

func (p *Pipeline) summaryPath() string {
	return filepath.Join(p.cfg.Paths.ProcessedDir(), "summary.csv")
}

func (p *Pipeline) analysisPath() string {
	return filepath.Join(p.cfg.Paths.ProcessedDir(), "analysis.json")
}

func (p *Pipeline) qcPath(stageName string) string {
	return filepath.Join(p.cfg.Paths.QCDir(), stageName+".json")
}

// writeJSON marshals v and writes it atomically via a temp file rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create dir for %s", path)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "pipeline: marshal %s", path)
	}
	data = append(data, '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "pipeline: rename %s", path)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "pipeline: parse %s", path)
	}
	return nil
}

// writeCSV writes a header plus rows atomically via a temp file rename.
func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create dir for %s", path)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", tmp)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return eris.Wrapf(err, "pipeline: write header %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return eris.Wrapf(err, "pipeline: write rows %s", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return eris.Wrapf(err, "pipeline: flush %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "pipeline: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "pipeline: rename %s", path)
	}
	return nil
}
