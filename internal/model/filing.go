package model

// Filing identifies one SEC filing in the filings index. Either SourcePath
// points at a local file or SourceURL names where to download it from.
type Filing struct {
	CIK             string `json:"cik"`
	FilingYear      int    `json:"filing_year"`
	Form            string `json:"form,omitempty"`
	SourcePath      string `json:"file_path,omitempty"`
	SourceURL       string `json:"source_url,omitempty"`
	PrimaryDocument string `json:"primary_document,omitempty"`
}

// FacilityRow is one normalized EPA facility-year observation, produced by
// the GHGRP and ECHO download stages.
type FacilityRow struct {
	FRSID         string  `json:"frs_id"`
	FacilityName  string  `json:"facility_name"`
	ParentCompany string  `json:"parent_company,omitempty"`
	ReportingYear int     `json:"reporting_year"`
	EmissionsCO2e float64 `json:"emissions_co2e,omitempty"`
	Inspections   int     `json:"inspections,omitempty"`
	Violations    int     `json:"violations,omitempty"`
	PenaltiesUSD  float64 `json:"penalties_usd,omitempty"`
}

// LinkageRow joins a GHGRP facility-year with its ECHO enforcement record
// and the CIK resolved from the parent company name. CIK is empty when no
// parent matched the SEC universe.
type LinkageRow struct {
	FRSID         string  `json:"frs_id"`
	ReportingYear int     `json:"reporting_year"`
	ParentCompany string  `json:"parent_company,omitempty"`
	CIK           string  `json:"cik,omitempty"`
	EmissionsCO2e float64 `json:"emissions_co2e,omitempty"`
	Inspections   int     `json:"inspections,omitempty"`
	Violations    int     `json:"violations,omitempty"`
	PenaltiesUSD  float64 `json:"penalties_usd,omitempty"`
}

// PanelRow is one firm-year observation in the analysis panel: a filing's
// feature record joined (left) with its linked EPA facility aggregates.
type PanelRow struct {
	FeatureRecord
	SISimple      float64 `json:"si_simple"`
	EmissionsCO2e float64 `json:"emissions_co2e,omitempty"`
	Inspections   int     `json:"inspections,omitempty"`
	Violations    int     `json:"violations,omitempty"`
	PenaltiesUSD  float64 `json:"penalties_usd,omitempty"`
	Linked        bool    `json:"linked"`
}
