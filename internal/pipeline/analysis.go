package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/stage"
)

// YearMean is the cross-sectional mean of SI_simple for one filing year.
type YearMean struct {
	Year      int     `json:"year"`
	Documents int     `json:"documents"`
	MeanSI    float64 `json:"mean_si_simple"`
}

// AnalysisResult is the analysis stage output: per-year means plus a least
// squares slope of mean SI_simple on year. The slope is a descriptive
// trend, not an identified effect.
type AnalysisResult struct {
	Documents  int        `json:"documents"`
	ByYear     []YearMean `json:"by_year"`
	TrendSlope float64    `json:"trend_slope"`
	TrendOK    bool       `json:"trend_ok"`
}

// AnalysisStage writes the per-document summary table and the by-year
// trend analysis.
func (p *Pipeline) AnalysisStage() stage.Stage {
	return &stage.Func{
		StageName:   "analysis",
		InputPaths:  []string{p.featuresPath(), p.panelPath()},
		OutputPaths: []string{p.summaryPath(), p.analysisPath()},
		Body:        p.runAnalysis,
	}
}

func (p *Pipeline) runAnalysis(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "analysis"))

	records, err := readFeatureJSONL(p.featuresPath())
	if err != nil {
		return err
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = featureRow(r)
	}
	if err := writeCSV(p.summaryPath(), model.SummaryColumns, rows); err != nil {
		return err
	}

	result := Analyze(records)
	if err := writeJSON(p.analysisPath(), result); err != nil {
		return err
	}
	if err := writeJSON(p.qcPath("analysis"), result); err != nil {
		return err
	}

	log.Info("analysis: summary written",
		zap.Int("documents", result.Documents),
		zap.Int("years", len(result.ByYear)),
		zap.Float64("trend_slope", result.TrendSlope))
	return nil
}

// Analyze computes by-year mean SI_simple and its least squares trend.
// Records without a filing year are excluded from the trend.
func Analyze(records []model.FeatureRecord) AnalysisResult {
	result := AnalysisResult{Documents: len(records)}

	byYear := map[int][]float64{}
	for _, r := range records {
		if r.FilingYear == 0 {
			continue
		}
		byYear[r.FilingYear] = append(byYear[r.FilingYear], r.SISimple())
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, y := range years {
		vals := byYear[y]
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		result.ByYear = append(result.ByYear, YearMean{
			Year:      y,
			Documents: len(vals),
			MeanSI:    sum / float64(len(vals)),
		})
	}

	// Least squares slope needs at least two distinct years.
	if len(result.ByYear) >= 2 {
		result.TrendSlope = olsSlope(result.ByYear)
		result.TrendOK = true
	}
	return result
}

func olsSlope(points []YearMean) float64 {
	n := float64(len(points))
	var sumX, sumY float64
	for _, p := range points {
		sumX += float64(p.Year)
		sumY += p.MeanSI
	}
	meanX := sumX / n
	meanY := sumY / n

	var num, den float64
	for _, p := range points {
		dx := float64(p.Year) - meanX
		num += dx * (p.MeanSI - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
