package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/dict"
	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/pipeline"
	"github.com/sells-group/disclosure-cli/internal/stage"
	"github.com/sells-group/disclosure-cli/internal/store"
)

// pipelineEnv bundles everything a pipeline command needs.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Runner   *stage.Runner
	Store    store.Store
	RunID    string
}

func (e *pipelineEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
}

// initDict loads the dictionary configured in text.dictionary_path, or the
// embedded version when no path is set.
func initDict() (*dict.Dictionary, error) {
	if cfg.Text.DictionaryPath != "" {
		d, err := dict.Load(cfg.Text.DictionaryPath)
		if err != nil {
			return nil, eris.Wrapf(err, "load dictionary %s", cfg.Text.DictionaryPath)
		}
		return d, nil
	}
	d, err := dict.LoadVersion(cfg.Text.DictionaryVersion)
	if err != nil {
		return nil, eris.Wrapf(err, "load dictionary version %s", cfg.Text.DictionaryVersion)
	}
	return d, nil
}

func initFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.SEC.UserAgent,
		Timeout:      time.Duration(cfg.Runtime.RequestTimeoutSecs) * time.Second,
		RateLimiters: fetcher.DefaultRateLimiters(cfg.SEC.RequestsPerSecond),
	})
}

func initStore() (store.Store, error) {
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// initPipeline wires the full stage environment with a fresh run id.
func initPipeline() (*pipelineEnv, error) {
	d, err := initDict()
	if err != nil {
		return nil, err
	}
	st, err := initStore()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	p := pipeline.New(cfg, st, initFetcher(), d, runID)
	runner := stage.NewRunner(stage.NewManifestStore(cfg.Paths.ManifestsDir()), runID)

	zap.L().Info("pipeline initialized",
		zap.String("run_id", runID),
		zap.String("dictionary_version", d.Version),
		zap.String("dictionary_sha256", d.SHA256))

	return &pipelineEnv{Pipeline: p, Runner: runner, Store: st, RunID: runID}, nil
}
