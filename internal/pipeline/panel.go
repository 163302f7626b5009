package pipeline

import (
	"context"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/stage"
)

var panelColumns = append(append([]string{}, model.SummaryColumns...),
	"emissions_co2e", "inspections", "violations", "penalties_usd", "linked")

type panelQC struct {
	FeatureRows int `json:"feature_rows"`
	PanelRows   int `json:"panel_rows"`
	Linked      int `json:"linked"`
	Unlinked    int `json:"unlinked"`
}

// PanelStage left-joins feature records with linked EPA facility-year
// aggregates on (cik, filing_year = reporting_year). Every filing keeps a
// panel row; the linked flag records whether EPA data attached.
func (p *Pipeline) PanelStage() stage.Stage {
	return &stage.Func{
		StageName:   "panel",
		InputPaths:  []string{p.featuresPath(), p.linkagePath()},
		OutputPaths: []string{p.panelPath()},
		Body:        p.runPanel,
	}
}

func (p *Pipeline) runPanel(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "panel"))

	records, err := readFeatureJSONL(p.featuresPath())
	if err != nil {
		return err
	}
	links, err := readLinkageCSV(p.linkagePath())
	if err != nil {
		return err
	}

	// Facilities aggregate to the firm-year before joining: a parent
	// company can own many facilities.
	type firmYear struct {
		cik  string
		year int
	}
	agg := map[firmYear]*model.LinkageRow{}
	for _, l := range links {
		if l.CIK == "" {
			continue
		}
		k := firmYear{cik: l.CIK, year: l.ReportingYear}
		a, ok := agg[k]
		if !ok {
			a = &model.LinkageRow{CIK: l.CIK, ReportingYear: l.ReportingYear}
			agg[k] = a
		}
		a.EmissionsCO2e += l.EmissionsCO2e
		a.Inspections += l.Inspections
		a.Violations += l.Violations
		a.PenaltiesUSD += l.PenaltiesUSD
	}

	qc := panelQC{FeatureRows: len(records)}
	panel := make([]model.PanelRow, len(records))
	rows := make([][]string, len(records))
	for i, rec := range records {
		pr := model.PanelRow{FeatureRecord: rec, SISimple: rec.SISimple()}
		if a, ok := agg[firmYear{cik: rec.CIK, year: rec.FilingYear}]; ok {
			pr.EmissionsCO2e = a.EmissionsCO2e
			pr.Inspections = a.Inspections
			pr.Violations = a.Violations
			pr.PenaltiesUSD = a.PenaltiesUSD
			pr.Linked = true
			qc.Linked++
		} else {
			qc.Unlinked++
		}
		panel[i] = pr
		rows[i] = append(featureRow(rec),
			formatFloat(pr.EmissionsCO2e),
			strconv.Itoa(pr.Inspections),
			strconv.Itoa(pr.Violations),
			formatFloat(pr.PenaltiesUSD),
			strconv.FormatBool(pr.Linked),
		)
	}
	qc.PanelRows = len(panel)

	if err := writeCSV(p.panelPath(), panelColumns, rows); err != nil {
		return err
	}
	if err := writeJSON(p.qcPath("panel"), qc); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.SavePanel(ctx, p.runID, panel); err != nil {
			return err
		}
	}

	log.Info("panel: firm-year panel assembled",
		zap.Int("rows", qc.PanelRows),
		zap.Int("linked", qc.Linked),
		zap.Int("unlinked", qc.Unlinked))
	return nil
}

// readLinkageCSV reads the linkage stage output back into rows.
func readLinkageCSV(path string) ([]model.LinkageRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "panel: open %s", path)
	}
	defer f.Close()

	header, raw, err := fetcher.ReadCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "panel: parse %s", path)
	}
	idx := fetcher.ColumnIndex(header)

	out := make([]model.LinkageRow, 0, len(raw))
	for i, r := range raw {
		year, err := strconv.Atoi(fetcher.Field(r, idx, "reporting_year"))
		if err != nil {
			return nil, eris.Wrapf(err, "panel: linkage row %d: bad reporting_year", i+2)
		}
		emissions, _ := strconv.ParseFloat(fetcher.Field(r, idx, "emissions_co2e"), 64)
		inspections, _ := strconv.Atoi(fetcher.Field(r, idx, "inspections"))
		violations, _ := strconv.Atoi(fetcher.Field(r, idx, "violations"))
		penalties, _ := strconv.ParseFloat(fetcher.Field(r, idx, "penalties_usd"), 64)
		out = append(out, model.LinkageRow{
			FRSID:         fetcher.Field(r, idx, "frs_id"),
			ReportingYear: year,
			ParentCompany: fetcher.Field(r, idx, "parent_company"),
			CIK:           fetcher.Field(r, idx, "cik"),
			EmissionsCO2e: emissions,
			Inspections:   inspections,
			Violations:    violations,
			PenaltiesUSD:  penalties,
		})
	}
	return out, nil
}
