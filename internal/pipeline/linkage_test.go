package pipeline

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
)

func seedLinkageInputs(t *testing.T, p *Pipeline) {
	t.Helper()
	require.NoError(t, writeJSON(p.ghgrpPath(), []model.FacilityRow{
		{FRSID: "110000123", FacilityName: "Cupertino Plant", ParentCompany: "Apple Inc.", ReportingYear: 2023, EmissionsCO2e: 12500.5},
		{FRSID: "110000789", FacilityName: "Orphan Site", ParentCompany: "Unknown Holdings LLC", ReportingYear: 2023, EmissionsCO2e: 50},
	}))
	require.NoError(t, writeJSON(p.echoPath(), []model.FacilityRow{
		{FRSID: "110000123", ReportingYear: 2023, Inspections: 3, Violations: 1, PenaltiesUSD: 25000},
	}))
	seedFilings(t, p, []DownloadedFiling{
		{Filing: model.Filing{CIK: "0000320193", FilingYear: 2023}, LocalPath: "x.html"},
	})
	require.NoError(t, writeJSON(p.universePath(), map[string]string{
		"0000320193": "Apple Inc.",
	}))
}

func TestLinkageStageResolvesCIKs(t *testing.T) {
	p, _, _ := testPipeline(t)
	seedLinkageInputs(t, p)

	runStage(t, p, p.LinkageStage())

	links, err := readLinkageCSV(p.linkagePath())
	require.NoError(t, err)
	require.Len(t, links, 2)

	assert.Equal(t, "110000123", links[0].FRSID)
	assert.Equal(t, "0000320193", links[0].CIK)
	assert.InDelta(t, 12500.5, links[0].EmissionsCO2e, 1e-9)
	assert.Equal(t, 3, links[0].Inspections)
	assert.Equal(t, 1, links[0].Violations)
	assert.InDelta(t, 25000.0, links[0].PenaltiesUSD, 1e-9)

	// The orphan facility keeps its GHGRP data but resolves no CIK.
	assert.Equal(t, "110000789", links[1].FRSID)
	assert.Empty(t, links[1].CIK)
	assert.Zero(t, links[1].Inspections)

	var qc linkageQC
	require.NoError(t, readJSON(p.qcPath("linkage"), &qc))
	assert.Equal(t, 2, qc.LinkageRows)
	assert.Equal(t, 1, qc.CIKResolved)
	assert.Equal(t, 1, qc.CIKUnmatched)
}

func TestLinkageStageHeaderStable(t *testing.T) {
	p, _, _ := testPipeline(t)
	seedLinkageInputs(t, p)
	runStage(t, p, p.LinkageStage())

	data, err := os.ReadFile(p.linkagePath())
	require.NoError(t, err)
	assert.Contains(t, string(data),
		"frs_id,reporting_year,parent_company,cik,emissions_co2e,inspections,violations,penalties_usd\n")
}
