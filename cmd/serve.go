package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/stage"
	"github.com/sells-group/disclosure-cli/internal/store"
)

var servePort int

// serveCmd exposes read-only pipeline state over HTTP: stage manifests,
// recorded runs, and the feature and panel rows of a run.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve pipeline status and feature records over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		manifests := stage.NewManifestStore(cfg.Paths.ManifestsDir())
		router := newStatusRouter(st, manifests)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting status server", zap.Int("port", port))
		return serveUntilCanceled(ctx, &http.Server{Handler: router}, ln)
	},
}

// serveUntilCanceled serves until ctx is canceled, then drains in-flight
// requests with a fresh timeout context. The signal context is already
// canceled by then and would abort the drain immediately.
func serveUntilCanceled(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	}
}

func newStatusRouter(st store.Store, manifests *stage.ManifestStore) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/stages", func(w http.ResponseWriter, r *http.Request) {
		ms, err := manifests.All()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, ms)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListRuns(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSONResponse(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{run_id}/features", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run_id")
		records, err := st.ListFeatures(r.Context(), runID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		if len(records) == 0 {
			writeJSONError(w, http.StatusNotFound, eris.Errorf("no features for run %s", runID))
			return
		}
		writeJSONResponse(w, http.StatusOK, records)
	})

	r.Get("/api/runs/{run_id}/panel", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run_id")
		rows, err := st.ListPanel(r.Context(), runID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		if len(rows) == 0 {
			writeJSONError(w, http.StatusNotFound, eris.Errorf("no panel rows for run %s", runID))
			return
		}
		writeJSONResponse(w, http.StatusOK, rows)
	})

	return r
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSONResponse(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
