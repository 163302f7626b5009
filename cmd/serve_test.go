package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/stage"
	"github.com/sells-group/disclosure-cli/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store, *stage.ManifestStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	manifests := stage.NewManifestStore(filepath.Join(t.TempDir(), "manifests"))
	return newStatusRouter(st, manifests), st, manifests
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHealth(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeStages(t *testing.T) {
	h, _, manifests := newTestRouter(t)
	require.NoError(t, manifests.Write(&stage.Manifest{
		StageName: "sec_features",
		RunID:     "run-1",
		Status:    stage.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}))

	rec := get(t, h, "/api/stages")
	assert.Equal(t, http.StatusOK, rec.Code)

	var ms []stage.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ms))
	require.Len(t, ms, 1)
	assert.Equal(t, "sec_features", ms[0].StageName)
}

func TestServeRuns(t *testing.T) {
	h, st, _ := newTestRouter(t)

	rec := get(t, h, "/api/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, st.CreateRun(context.Background(), "run-1"))
	rec = get(t, h, "/api/runs")
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestServeRunFeatures(t *testing.T) {
	h, st, _ := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, "run-1"))
	require.NoError(t, st.SaveFeatures(ctx, "run-1", []model.FeatureRecord{
		{CIK: "1", FilingYear: 2023, InputSHA256: "aa", DictionarySHA256: "bb", DictionaryVersion: "v1"},
	}))

	rec := get(t, h, "/api/runs/run-1/features")
	assert.Equal(t, http.StatusOK, rec.Code)

	var records []model.FeatureRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].CIK)

	rec = get(t, h, "/api/runs/unknown/features")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeRunPanel(t *testing.T) {
	h, st, _ := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, "run-1"))
	require.NoError(t, st.SavePanel(ctx, "run-1", []model.PanelRow{
		{
			FeatureRecord: model.FeatureRecord{CIK: "1", FilingYear: 2023, InputSHA256: "aa", DictionarySHA256: "bb", DictionaryVersion: "v1"},
			SISimple:      0.25,
			Linked:        true,
		},
	}))

	rec := get(t, h, "/api/runs/run-1/panel")
	assert.Equal(t, http.StatusOK, rec.Code)

	var rows []model.PanelRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Linked)

	rec = get(t, h, "/api/runs/unknown/panel")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeGracefulShutdownDrainsRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- serveUntilCanceled(ctx, &http.Server{Handler: mux}, ln) }()

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err == nil {
			respCh <- resp
		}
	}()

	// Cancel with the request still in flight, then let the handler finish.
	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case resp := <-respCh:
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request was cut off during shutdown")
	}
	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"run", "doctor", "sec", "epa", "link", "panel", "analyze",
		"features", "extract-text", "config", "stages", "runs", "serve",
	}
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, n := range want {
		assert.True(t, names[n], n)
	}
}
