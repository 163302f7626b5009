package linkage

import (
	"sort"
	"strings"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Universe maps normalized registrant names to CIKs. Built once from the
// SEC filings index, read-only afterwards.
type Universe struct {
	byName map[string]string
}

// NewUniverse indexes filings by normalized registrant name. When the index
// lacks names, CIKs are keyed by themselves so lookups by CIK still work.
func NewUniverse(filings []model.Filing, names map[string]string) *Universe {
	u := &Universe{byName: make(map[string]string)}
	for cik, name := range names {
		if key := NormalizeName(name); key != "" {
			u.byName[key] = cik
		}
	}
	for _, f := range filings {
		u.byName[f.CIK] = f.CIK
	}
	return u
}

// ResolveCIK maps a parent-company name to a CIK. Exact normalized match
// first, then a unique-prefix match; ambiguous prefixes resolve to nothing
// rather than to a wrong firm.
func (u *Universe) ResolveCIK(parentName string) (string, bool) {
	key := NormalizeName(parentName)
	if key == "" {
		return "", false
	}
	if cik, ok := u.byName[key]; ok {
		return cik, true
	}

	var hit string
	for name, cik := range u.byName {
		if strings.HasPrefix(name, key) || strings.HasPrefix(key, name) {
			if hit != "" && hit != cik {
				return "", false
			}
			hit = cik
		}
	}
	return hit, hit != ""
}

// Join merges GHGRP and ECHO facility rows on (frs_id, reporting_year) and
// resolves each parent company against the universe. GHGRP drives the join;
// ECHO rows without a GHGRP match are dropped, mirroring how the panel is
// anchored on emitters. Output order is deterministic.
func Join(ghgrp, echo []model.FacilityRow, u *Universe) []model.LinkageRow {
	type key struct {
		frs  string
		year int
	}
	echoByKey := make(map[key]model.FacilityRow, len(echo))
	for _, e := range echo {
		echoByKey[key{e.FRSID, e.ReportingYear}] = e
	}

	out := make([]model.LinkageRow, 0, len(ghgrp))
	for _, g := range ghgrp {
		row := model.LinkageRow{
			FRSID:         g.FRSID,
			ReportingYear: g.ReportingYear,
			ParentCompany: g.ParentCompany,
			EmissionsCO2e: g.EmissionsCO2e,
		}
		if e, ok := echoByKey[key{g.FRSID, g.ReportingYear}]; ok {
			row.Inspections = e.Inspections
			row.Violations = e.Violations
			row.PenaltiesUSD = e.PenaltiesUSD
		}
		if u != nil {
			if cik, ok := u.ResolveCIK(g.ParentCompany); ok {
				row.CIK = cik
			}
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FRSID != out[j].FRSID {
			return out[i].FRSID < out[j].FRSID
		}
		return out[i].ReportingYear < out[j].ReportingYear
	})
	return out
}
