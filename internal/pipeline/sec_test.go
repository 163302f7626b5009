package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const filingHTML = `<html><body>
<p>We aim to reduce emissions.</p>
<p>We reduced emissions by 12% in 2023.</p>
<p>Our revenue grew 5% this quarter.</p>
</body></html>`

// writeFilingsIndex writes an index with one local filing and one remote
// filing served by the fake fetcher.
func writeFilingsIndex(t *testing.T, p *Pipeline, fake *fakeFetcher) string {
	t.Helper()
	dir := filepath.Dir(p.cfg.SEC.FilingsIndex)
	local := filepath.Join(dir, "aapl_2023.html")
	require.NoError(t, os.WriteFile(local, []byte(filingHTML), 0o644))

	fake.bodies["https://example.com/msft_2023.html"] = []byte(filingHTML)

	index := "cik,filing_year,form,company_name,file_path,source_url,primary_document\n" +
		"0000320193,2023,10-K,Apple Inc.," + local + ",,\n" +
		"0000789019,2023,10-K,Microsoft Corporation,,https://example.com/msft_2023.html,msft_2023.html\n"
	require.NoError(t, os.WriteFile(p.cfg.SEC.FilingsIndex, []byte(index), 0o644))
	return local
}

func TestSECDownloadMaterializesFilings(t *testing.T) {
	p, cfg, fake := testPipeline(t)
	local := writeFilingsIndex(t, p, fake)

	runStage(t, p, p.SECDownloadStage())

	var filings []DownloadedFiling
	require.NoError(t, readJSON(p.filingsPath(), &filings))
	require.Len(t, filings, 2)

	assert.Equal(t, "0000320193", filings[0].CIK)
	assert.Equal(t, local, filings[0].LocalPath)
	assert.NotEmpty(t, filings[0].SHA256)

	assert.Equal(t, "0000789019", filings[1].CIK)
	assert.Equal(t, filepath.Join(cfg.Paths.RawDir(), "sec", "msft_2023.html"), filings[1].LocalPath)
	assert.FileExists(t, filings[1].LocalPath)
	// Identical bytes, identical hash.
	assert.Equal(t, filings[0].SHA256, filings[1].SHA256)

	names := map[string]string{}
	require.NoError(t, readJSON(p.universePath(), &names))
	assert.Equal(t, "Apple Inc.", names["0000320193"])
	assert.Equal(t, "Microsoft Corporation", names["0000789019"])

	var qc secQC
	require.NoError(t, readJSON(p.qcPath("sec_download"), &qc))
	assert.Equal(t, 2, qc.Total)
	assert.Equal(t, 1, qc.Local)
	assert.Equal(t, 1, qc.Downloaded)
}

func TestSECDownloadUsesCache(t *testing.T) {
	p, _, fake := testPipeline(t)
	writeFilingsIndex(t, p, fake)

	runStage(t, p, p.SECDownloadStage())
	assert.Equal(t, 1, fake.fetches)

	// Force a re-run; the raw file is already on disk so no fetch happens.
	var qc secQC
	require.NoError(t, p.runSECDownload(t.Context()))
	require.NoError(t, readJSON(p.qcPath("sec_download"), &qc))
	assert.Equal(t, 1, fake.fetches)
	assert.Equal(t, 1, qc.Cached)
	assert.Equal(t, 0, qc.Downloaded)
}

func TestSECDownloadMaxFilings(t *testing.T) {
	p, cfg, fake := testPipeline(t)
	writeFilingsIndex(t, p, fake)
	cfg.SEC.MaxFilings = 1

	runStage(t, p, p.SECDownloadStage())

	var filings []DownloadedFiling
	require.NoError(t, readJSON(p.filingsPath(), &filings))
	assert.Len(t, filings, 1)

	var qc secQC
	require.NoError(t, readJSON(p.qcPath("sec_download"), &qc))
	assert.Equal(t, 1, qc.Skipped)
}

func TestReadFilingsIndexValidation(t *testing.T) {
	p, cfg, _ := testPipeline(t)

	cases := map[string]string{
		"missing cik column": "filing_year,file_path\n2023,x.html\n",
		"bad year":           "cik,filing_year,file_path\n1,notayear,x.html\n",
		"empty cik":          "cik,filing_year,file_path\n,2023,x.html\n",
		"no source":          "cik,filing_year,file_path,source_url\n1,2023,,\n",
	}
	for name, index := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(cfg.SEC.FilingsIndex, []byte(index), 0o644))
			_, _, err := p.readFilingsIndex()
			assert.Error(t, err)
		})
	}
}
