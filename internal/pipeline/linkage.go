package pipeline

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/linkage"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/stage"
)

var linkageColumns = []string{
	"frs_id", "reporting_year", "parent_company", "cik",
	"emissions_co2e", "inspections", "violations", "penalties_usd",
}

type linkageQC struct {
	GHGRPRows    int `json:"ghgrp_rows"`
	EchoRows     int `json:"echo_rows"`
	LinkageRows  int `json:"linkage_rows"`
	CIKResolved  int `json:"cik_resolved"`
	CIKUnmatched int `json:"cik_unmatched"`
}

// LinkageStage joins GHGRP and ECHO facility-years and resolves each
// parent company to a CIK from the SEC universe.
func (p *Pipeline) LinkageStage() stage.Stage {
	return &stage.Func{
		StageName:   "linkage",
		InputPaths:  []string{p.ghgrpPath(), p.echoPath(), p.filingsPath(), p.universePath()},
		OutputPaths: []string{p.linkagePath()},
		Body:        p.runLinkage,
	}
}

func (p *Pipeline) runLinkage(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "linkage"))

	var ghgrp, echo []model.FacilityRow
	if err := readJSON(p.ghgrpPath(), &ghgrp); err != nil {
		return err
	}
	if err := readJSON(p.echoPath(), &echo); err != nil {
		return err
	}
	var downloaded []DownloadedFiling
	if err := readJSON(p.filingsPath(), &downloaded); err != nil {
		return err
	}
	names := map[string]string{}
	if err := readJSON(p.universePath(), &names); err != nil {
		return err
	}

	filings := make([]model.Filing, len(downloaded))
	for i, d := range downloaded {
		filings[i] = d.Filing
	}
	u := linkage.NewUniverse(filings, names)
	joined := linkage.Join(ghgrp, echo, u)

	qc := linkageQC{GHGRPRows: len(ghgrp), EchoRows: len(echo), LinkageRows: len(joined)}
	rows := make([][]string, len(joined))
	for i, l := range joined {
		if l.CIK != "" {
			qc.CIKResolved++
		} else {
			qc.CIKUnmatched++
		}
		rows[i] = []string{
			l.FRSID,
			strconv.Itoa(l.ReportingYear),
			l.ParentCompany,
			l.CIK,
			formatFloat(l.EmissionsCO2e),
			strconv.Itoa(l.Inspections),
			strconv.Itoa(l.Violations),
			formatFloat(l.PenaltiesUSD),
		}
	}

	if err := writeCSV(p.linkagePath(), linkageColumns, rows); err != nil {
		return err
	}
	if err := writeJSON(p.qcPath("linkage"), qc); err != nil {
		return err
	}

	log.Info("linkage: facility-years joined",
		zap.Int("rows", len(joined)),
		zap.Int("cik_resolved", qc.CIKResolved),
		zap.Int("cik_unmatched", qc.CIKUnmatched))
	return nil
}
