package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "Acme Research ops@acme.example"})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "Acme Research ops@acme.example", gotUA)
}

func TestDownload_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 3})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()
	assert.EqualValues(t, 3, calls.Load())
}

func TestDownload_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err := f.Download(ctx, srv.URL)
	assert.Error(t, err)
}

func TestDownload_404IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 3})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file content"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "nested", "out.bin")
	f := NewHTTPFetcher(HTTPOptions{})
	n, err := f.DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.EqualValues(t, len("file content"), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content", string(data))

	// No partial file left behind.
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadWithCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("cached content"))
	}))
	defer srv.Close()

	sum := sha256.Sum256([]byte("cached content"))
	want := hex.EncodeToString(sum[:])

	path := filepath.Join(t.TempDir(), "data.csv")
	f := NewHTTPFetcher(HTTPOptions{})

	got, fetched, err := f.DownloadWithCache(context.Background(), srv.URL, path, want)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, want, got)

	// Second call trusts the verified cache.
	got, fetched, err = f.DownloadWithCache(context.Background(), srv.URL, path, want)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, calls.Load())

	// Corrupting the cache forces a re-fetch.
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	_, fetched, err = f.DownloadWithCache(context.Background(), srv.URL, path, want)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDefaultRateLimiters_ClampsSEC(t *testing.T) {
	lims := DefaultRateLimiters(50)
	assert.InDelta(t, 10, float64(lims["www.sec.gov"].Limit()), 0.01)

	lims = DefaultRateLimiters(5)
	assert.InDelta(t, 5, float64(lims["data.sec.gov"].Limit()), 0.01)
}
