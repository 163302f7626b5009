// Package fetcher downloads remote source data with per-host rate limiting
// and retry. SEC hosts are capped at 10 requests per second per the fair
// access policy; everything downloaded to disk can be verified against a
// recorded sha256 so cached files are trusted, not re-fetched.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadWithCache fetches the URL to path unless the file already
	// exists with the expected sha256. Returns the file's sha256 and
	// whether a network fetch happened.
	DownloadWithCache(ctx context.Context, url string, path string, wantSHA256 string) (string, bool, error)
}
