package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/stage"
)

// ghgrpSheet is the data sheet in EPA's GHGRP workbook export.
const ghgrpSheet = "Direct Emitters"

type epaQC struct {
	Source  string `json:"source"`
	Fetched bool   `json:"fetched"`
	Rows    int    `json:"rows"`
	Dropped int    `json:"dropped"`
}

// GHGRPStage fetches the EPA Greenhouse Gas Reporting Program facility
// workbook and normalizes it into facility-year emission rows. A local
// fixture path takes the place of the network when no URL is configured.
func (p *Pipeline) GHGRPStage() stage.Stage {
	var inputs []string
	var vals map[string]string
	if p.cfg.EPA.GHGRPURL != "" {
		// The URL is a value input: changing the configured source must
		// invalidate the prior completed manifest even though no local
		// file changed yet.
		vals = map[string]string{"ghgrp_url": p.cfg.EPA.GHGRPURL}
	} else if p.cfg.EPA.GHGRPFixture != "" {
		inputs = append(inputs, p.cfg.EPA.GHGRPFixture)
	}
	return &stage.Func{
		StageName:   "ghgrp_download",
		InputPaths:  inputs,
		InputVals:   vals,
		OutputPaths: []string{p.ghgrpPath()},
		Body:        p.runGHGRP,
	}
}

func (p *Pipeline) runGHGRP(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "ghgrp_download"))

	local, source, fetched, err := p.materializeEPA(ctx, p.cfg.EPA.GHGRPURL, p.cfg.EPA.GHGRPFixture, "ghgrp.xlsx")
	if err != nil {
		return eris.Wrap(err, "ghgrp: materialize workbook")
	}

	header, raw, err := fetcher.ReadXLSX(local, ghgrpSheet)
	if err != nil {
		return eris.Wrapf(err, "ghgrp: read %s", local)
	}

	rows, dropped, err := parseGHGRP(header, raw)
	if err != nil {
		return err
	}
	if err := writeJSON(p.ghgrpPath(), rows); err != nil {
		return err
	}
	qc := epaQC{Source: source, Fetched: fetched, Rows: len(rows), Dropped: dropped}
	if err := writeJSON(p.qcPath("ghgrp_download"), qc); err != nil {
		return err
	}

	log.Info("ghgrp: facility rows normalized",
		zap.Int("rows", len(rows)), zap.Int("dropped", dropped))
	return nil
}

// parseGHGRP maps workbook columns onto FacilityRow. Rows without an FRS id
// or reporting year are dropped and counted rather than failing the stage;
// EPA exports routinely carry footnote rows.
func parseGHGRP(header []string, raw [][]string) ([]model.FacilityRow, int, error) {
	idx := fetcher.ColumnIndex(header)
	for _, col := range []string{"frs id", "reporting year"} {
		if _, ok := idx[col]; !ok {
			return nil, 0, eris.Errorf("ghgrp: workbook missing column %q", col)
		}
	}

	var rows []model.FacilityRow
	dropped := 0
	for _, r := range raw {
		frs := strings.TrimSpace(fetcher.Field(r, idx, "frs id"))
		year, yerr := strconv.Atoi(strings.TrimSpace(fetcher.Field(r, idx, "reporting year")))
		if frs == "" || yerr != nil {
			dropped++
			continue
		}
		emissions, _ := strconv.ParseFloat(
			strings.ReplaceAll(fetcher.Field(r, idx, "total reported direct emissions"), ",", ""), 64)
		rows = append(rows, model.FacilityRow{
			FRSID:         frs,
			FacilityName:  fetcher.Field(r, idx, "facility name"),
			ParentCompany: fetcher.Field(r, idx, "parent companies"),
			ReportingYear: year,
			EmissionsCO2e: emissions,
		})
	}
	return rows, dropped, nil
}

// EchoStage fetches the EPA ECHO enforcement export and normalizes it into
// facility-year inspection and penalty rows.
func (p *Pipeline) EchoStage() stage.Stage {
	var inputs []string
	var vals map[string]string
	if p.cfg.EPA.EchoURL != "" {
		vals = map[string]string{"echo_url": p.cfg.EPA.EchoURL}
	} else if p.cfg.EPA.EchoFixture != "" {
		inputs = append(inputs, p.cfg.EPA.EchoFixture)
	}
	return &stage.Func{
		StageName:   "echo_download",
		InputPaths:  inputs,
		InputVals:   vals,
		OutputPaths: []string{p.echoPath()},
		Body:        p.runEcho,
	}
}

func (p *Pipeline) runEcho(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "echo_download"))

	local, source, fetched, err := p.materializeEPA(ctx, p.cfg.EPA.EchoURL, p.cfg.EPA.EchoFixture, "echo.csv")
	if err != nil {
		return eris.Wrap(err, "echo: materialize export")
	}

	f, err := os.Open(local)
	if err != nil {
		return eris.Wrapf(err, "echo: open %s", local)
	}
	defer f.Close()

	header, raw, err := fetcher.ReadCSV(f)
	if err != nil {
		return eris.Wrapf(err, "echo: parse %s", local)
	}

	rows, dropped, err := parseEcho(header, raw)
	if err != nil {
		return err
	}
	if err := writeJSON(p.echoPath(), rows); err != nil {
		return err
	}
	qc := epaQC{Source: source, Fetched: fetched, Rows: len(rows), Dropped: dropped}
	if err := writeJSON(p.qcPath("echo_download"), qc); err != nil {
		return err
	}

	log.Info("echo: enforcement rows normalized",
		zap.Int("rows", len(rows)), zap.Int("dropped", dropped))
	return nil
}

func parseEcho(header []string, raw [][]string) ([]model.FacilityRow, int, error) {
	idx := fetcher.ColumnIndex(header)
	for _, col := range []string{"frs id", "year"} {
		if _, ok := idx[col]; !ok {
			return nil, 0, eris.Errorf("echo: export missing column %q", col)
		}
	}

	var rows []model.FacilityRow
	dropped := 0
	for _, r := range raw {
		frs := strings.TrimSpace(fetcher.Field(r, idx, "frs id"))
		year, yerr := strconv.Atoi(strings.TrimSpace(fetcher.Field(r, idx, "year")))
		if frs == "" || yerr != nil {
			dropped++
			continue
		}
		inspections, _ := strconv.Atoi(fetcher.Field(r, idx, "inspections"))
		violations, _ := strconv.Atoi(fetcher.Field(r, idx, "violations"))
		penalties, _ := strconv.ParseFloat(
			strings.ReplaceAll(fetcher.Field(r, idx, "penalties"), ",", ""), 64)
		rows = append(rows, model.FacilityRow{
			FRSID:         frs,
			FacilityName:  fetcher.Field(r, idx, "facility name"),
			ReportingYear: year,
			Inspections:   inspections,
			Violations:    violations,
			PenaltiesUSD:  penalties,
		})
	}
	return rows, dropped, nil
}

// materializeEPA resolves an EPA source to a local file: download with
// caching when a URL is configured, otherwise use the fixture in place.
// The cache file name carries a digest of the URL so a reconfigured source
// never reuses the previous source's bytes.
func (p *Pipeline) materializeEPA(ctx context.Context, url, fixture, rawName string) (local, source string, fetched bool, err error) {
	if url != "" {
		ext := filepath.Ext(rawName)
		name := strings.TrimSuffix(rawName, ext) + "_" + stage.ValueSHA256(url)[:8] + ext
		local = filepath.Join(p.cfg.Paths.RawDir(), "epa", name)
		_, fetched, err = p.fetch.DownloadWithCache(ctx, url, local, "")
		return local, url, fetched, err
	}
	if fixture == "" {
		return "", "", false, eris.New("no url or fixture configured")
	}
	return fixture, fixture, false, nil
}
