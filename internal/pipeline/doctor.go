package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/stage"
)

// secMaxRPS is the SEC fair-access ceiling.
const secMaxRPS = 10

type doctorReport struct {
	DirsCreated      []string `json:"dirs_created"`
	ZeroByteRemoved  []string `json:"zero_byte_removed"`
	Warnings         []string `json:"warnings,omitempty"`
	DictionaryHash   string   `json:"dictionary_sha256"`
	DictionaryTermOK bool     `json:"dictionary_ok"`
}

// DoctorStage prepares the workspace: creates the directory tree, removes
// zero-byte leftovers from interrupted downloads, and sanity-checks the
// configuration and dictionary.
func (p *Pipeline) DoctorStage() stage.Stage {
	return &stage.Func{
		StageName:   "doctor",
		OutputPaths: []string{p.qcPath("doctor")},
		Body:        p.runDoctor,
	}
}

func (p *Pipeline) runDoctor(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "doctor"))
	report := doctorReport{
		DirsCreated:     []string{},
		ZeroByteRemoved: []string{},
	}

	dirs := []string{
		filepath.Join(p.cfg.Paths.RawDir(), "sec"),
		filepath.Join(p.cfg.Paths.RawDir(), "epa"),
		p.cfg.Paths.InterimDir(),
		p.cfg.Paths.ProcessedDir(),
		p.cfg.Paths.ManifestsDir(),
		p.cfg.Paths.QCDir(),
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			report.DirsCreated = append(report.DirsCreated, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "doctor: create %s", dir)
		}
	}

	// Zero-byte raw files are truncated remnants of interrupted downloads
	// and would otherwise poison the cache check.
	err := filepath.Walk(p.cfg.Paths.RawDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Size() == 0 {
			if err := os.Remove(path); err != nil {
				return eris.Wrapf(err, "doctor: remove zero-byte %s", path)
			}
			report.ZeroByteRemoved = append(report.ZeroByteRemoved, path)
		}
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "doctor: scan raw dir")
	}

	if p.cfg.SEC.RequestsPerSecond > secMaxRPS {
		w := "sec.requests_per_second exceeds the SEC fair-access ceiling of 10; requests will be throttled"
		report.Warnings = append(report.Warnings, w)
		log.Warn(w, zap.Float64("configured", p.cfg.SEC.RequestsPerSecond))
	}

	report.DictionaryHash = p.dict.SHA256
	report.DictionaryTermOK = true

	if p.store != nil {
		if err := p.store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "doctor: migrate store")
		}
	}

	log.Info("doctor: workspace ready",
		zap.Int("dirs_created", len(report.DirsCreated)),
		zap.Int("zero_byte_removed", len(report.ZeroByteRemoved)))
	return writeJSON(p.qcPath("doctor"), report)
}
