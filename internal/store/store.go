// Package store persists pipeline runs and feature records. SQLite is the
// default backend; Postgres is available for shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/config"
	"github.com/sells-group/disclosure-cli/internal/model"
)

// RunStatus tracks one pipeline invocation in the store.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	StartedAt string    `json:"started_at"`
	EndedAt   string    `json:"ended_at,omitempty"`
}

// Store defines the persistence interface for the disclosure pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, runID string, status RunStatus) error
	ListRuns(ctx context.Context) ([]Run, error)

	// Feature records
	SaveFeatures(ctx context.Context, runID string, recs []model.FeatureRecord) error
	ListFeatures(ctx context.Context, runID string) ([]model.FeatureRecord, error)

	// Panel rows
	SavePanel(ctx context.Context, runID string, rows []model.PanelRow) error
	ListPanel(ctx context.Context, runID string) ([]model.PanelRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New creates a Store for the configured driver.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres":
		return NewPostgres(context.Background(), cfg.DSN)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
