package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// seedFilings writes a filings.json for the features stage, bypassing the
// download stage.
func seedFilings(t *testing.T, p *Pipeline, filings []DownloadedFiling) {
	t.Helper()
	require.NoError(t, writeJSON(p.filingsPath(), filings))
}

func seedFilingFile(t *testing.T, p *Pipeline, name, content string) string {
	t.Helper()
	dir := filepath.Join(p.cfg.Paths.RawDir(), "sec")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFeaturesStageExtractsRecords(t *testing.T) {
	p, _, _ := testPipeline(t)
	path := seedFilingFile(t, p, "aapl_2023.html", filingHTML)
	seedFilings(t, p, []DownloadedFiling{
		{Filing: model.Filing{CIK: "0000320193", FilingYear: 2023}, LocalPath: path},
	})

	runStage(t, p, p.FeaturesStage())

	records, err := readFeatureJSONL(p.featuresPath())
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "0000320193", r.CIK)
	assert.Equal(t, 2023, r.FilingYear)
	assert.Equal(t, 3, r.SentencesTotal)
	assert.Equal(t, 2, r.SentencesEnv)
	assert.Equal(t, 1, r.SentencesAspirational)
	assert.Equal(t, 1, r.SentencesKPI)
	assert.InDelta(t, 0.5, r.AShare, 1e-12)
	assert.InDelta(t, 0.5, r.QShare, 1e-12)
	assert.Equal(t, "v1", r.DictionaryVersion)
	assert.NotEmpty(t, r.InputSHA256)
}

func TestFeaturesStageOutputOrderIsStable(t *testing.T) {
	p, cfg, _ := testPipeline(t)
	cfg.Runtime.MaxWorkers = 4

	var filings []DownloadedFiling
	for _, name := range []string{"a.html", "b.html", "c.html", "d.html"} {
		path := seedFilingFile(t, p, name, filingHTML)
		filings = append(filings, DownloadedFiling{
			Filing:    model.Filing{CIK: name, FilingYear: 2023},
			LocalPath: path,
		})
	}
	seedFilings(t, p, filings)

	runStage(t, p, p.FeaturesStage())
	first, err := os.ReadFile(p.featuresPath())
	require.NoError(t, err)

	records, err := readFeatureJSONL(p.featuresPath())
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, name := range []string{"a.html", "b.html", "c.html", "d.html"} {
		assert.Equal(t, name, records[i].CIK)
	}

	// A second extraction over identical inputs is byte-identical.
	require.NoError(t, p.runFeatures(t.Context()))
	second, err := os.ReadFile(p.featuresPath())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFeaturesStageIsolatesDocumentFailures(t *testing.T) {
	p, _, _ := testPipeline(t)
	good := seedFilingFile(t, p, "good.html", filingHTML)
	seedFilings(t, p, []DownloadedFiling{
		{Filing: model.Filing{CIK: "1", FilingYear: 2023}, LocalPath: good},
		{Filing: model.Filing{CIK: "2", FilingYear: 2023}, LocalPath: "/nonexistent/gone.html"},
	})

	runStage(t, p, p.FeaturesStage())

	records, err := readFeatureJSONL(p.featuresPath())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].CIK)

	var qc featuresQC
	require.NoError(t, readJSON(p.qcPath("sec_features"), &qc))
	assert.Equal(t, 2, qc.Documents)
	assert.Equal(t, 1, qc.Extracted)
	assert.Equal(t, 1, qc.Failed)
	require.Len(t, qc.Failures, 1)
	assert.Equal(t, "2", qc.Failures[0].CIK)
}

func TestFeaturesStageFailsWhenNothingExtracts(t *testing.T) {
	p, _, _ := testPipeline(t)
	seedFilings(t, p, []DownloadedFiling{
		{Filing: model.Filing{CIK: "1", FilingYear: 2023}, LocalPath: "/nonexistent/a.html"},
	})

	err := p.runFeatures(t.Context())
	assert.Error(t, err)
}
