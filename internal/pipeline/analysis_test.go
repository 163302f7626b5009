package pipeline

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/model"
)

func TestAnalyzeByYearMeansAndTrend(t *testing.T) {
	records := []model.FeatureRecord{
		{FilingYear: 2021, AShare: 0.2, QShare: 0.1}, // SI 0.1
		{FilingYear: 2021, AShare: 0.4, QShare: 0.1}, // SI 0.3
		{FilingYear: 2022, AShare: 0.5, QShare: 0.1}, // SI 0.4
		{FilingYear: 2023, AShare: 0.7, QShare: 0.1}, // SI 0.6
	}

	result := Analyze(records)
	assert.Equal(t, 4, result.Documents)
	require.Len(t, result.ByYear, 3)
	assert.Equal(t, 2021, result.ByYear[0].Year)
	assert.InDelta(t, 0.2, result.ByYear[0].MeanSI, 1e-12)
	assert.InDelta(t, 0.4, result.ByYear[1].MeanSI, 1e-12)
	assert.InDelta(t, 0.6, result.ByYear[2].MeanSI, 1e-12)

	// Means (0.2, 0.4, 0.6) over years (2021, 2022, 2023): slope 0.2/year.
	require.True(t, result.TrendOK)
	assert.InDelta(t, 0.2, result.TrendSlope, 1e-12)
}

func TestAnalyzeSingleYearNoTrend(t *testing.T) {
	result := Analyze([]model.FeatureRecord{
		{FilingYear: 2023, AShare: 0.5},
	})
	assert.False(t, result.TrendOK)
	assert.Zero(t, result.TrendSlope)
}

func TestAnalyzeSkipsRecordsWithoutYear(t *testing.T) {
	result := Analyze([]model.FeatureRecord{
		{AShare: 0.9},
		{FilingYear: 2023, AShare: 0.5},
	})
	assert.Equal(t, 2, result.Documents)
	require.Len(t, result.ByYear, 1)
	assert.Equal(t, 1, result.ByYear[0].Documents)
}

func TestAnalyzeEmpty(t *testing.T) {
	result := Analyze(nil)
	assert.Zero(t, result.Documents)
	assert.Empty(t, result.ByYear)
	assert.False(t, result.TrendOK)
}

func TestAnalysisStageWritesSummary(t *testing.T) {
	p, _, _ := testPipeline(t)
	require.NoError(t, writeFeatureJSONL(p.featuresPath(), []model.FeatureRecord{
		{CIK: "1", FilingYear: 2022, InputSHA256: "aa", DictionarySHA256: "dd", DictionaryVersion: "v1",
			SentencesTotal: 10, SentencesEnv: 4, AShare: 0.5, QShare: 0.25},
		{CIK: "2", FilingYear: 2023, InputSHA256: "bb", DictionarySHA256: "dd", DictionaryVersion: "v1",
			SentencesTotal: 5},
	}))
	require.NoError(t, writeCSV(p.panelPath(), panelColumns, nil))

	runStage(t, p, p.AnalysisStage())

	data, err := os.ReadFile(p.summaryPath())
	require.NoError(t, err)
	header, rows, err := fetcher.ReadCSV(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, model.SummaryColumns, header)
	require.Len(t, rows, 2)

	idx := fetcher.ColumnIndex(header)
	assert.Equal(t, "0.250000", fetcher.Field(rows[0], idx, "SI_simple"))

	var result AnalysisResult
	require.NoError(t, readJSON(p.analysisPath(), &result))
	assert.Equal(t, 2, result.Documents)
	require.Len(t, result.ByYear, 2)
	assert.True(t, result.TrendOK)
}
