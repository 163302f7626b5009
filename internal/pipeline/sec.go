package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/fetcher"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/stage"
)

// DownloadedFiling records where a filing landed on disk and the sha256 of
// its bytes, so downstream stages re-run when the content changes.
type DownloadedFiling struct {
	model.Filing
	LocalPath string `json:"local_path"`
	SHA256    string `json:"sha256"`
}

type secQC struct {
	IndexPath  string `json:"index_path"`
	Total      int    `json:"total"`
	Downloaded int    `json:"downloaded"`
	Cached     int    `json:"cached"`
	Local      int    `json:"local"`
	Skipped    int    `json:"skipped"`
}

// SECDownloadStage materializes every filing named in the filings index
// into the raw SEC directory and writes the normalized filings list plus
// the CIK-to-company universe for linkage.
func (p *Pipeline) SECDownloadStage() stage.Stage {
	return &stage.Func{
		StageName:   "sec_download",
		InputPaths:  []string{p.cfg.SEC.FilingsIndex},
		OutputPaths: []string{p.filingsPath(), p.universePath()},
		Body:        p.runSECDownload,
	}
}

func (p *Pipeline) runSECDownload(ctx context.Context) error {
	log := zap.L().With(zap.String("stage", "sec_download"))

	filings, names, err := p.readFilingsIndex()
	if err != nil {
		return err
	}

	qc := secQC{IndexPath: p.cfg.SEC.FilingsIndex, Total: len(filings)}
	out := make([]DownloadedFiling, 0, len(filings))

	for _, f := range filings {
		if p.cfg.SEC.MaxFilings > 0 && len(out) >= p.cfg.SEC.MaxFilings {
			qc.Skipped = len(filings) - len(out)
			break
		}
		df, fetched, err := p.materializeFiling(ctx, f)
		if err != nil {
			return err
		}
		switch {
		case f.SourceURL == "":
			qc.Local++
		case fetched:
			qc.Downloaded++
		default:
			qc.Cached++
		}
		out = append(out, df)
	}

	if err := writeJSON(p.filingsPath(), out); err != nil {
		return err
	}
	if err := writeJSON(p.universePath(), names); err != nil {
		return err
	}
	if err := writeJSON(p.qcPath("sec_download"), qc); err != nil {
		return err
	}

	log.Info("sec: filings materialized",
		zap.Int("total", qc.Total),
		zap.Int("downloaded", qc.Downloaded),
		zap.Int("cached", qc.Cached),
		zap.Int("local", qc.Local))
	return nil
}

// materializeFiling resolves one index row to a local file. Rows with a
// file_path are used in place; rows with a source_url are downloaded into
// the raw SEC directory with sha256-verified caching.
func (p *Pipeline) materializeFiling(ctx context.Context, f model.Filing) (DownloadedFiling, bool, error) {
	if f.SourcePath != "" {
		sha, err := stage.FileSHA256(f.SourcePath)
		if err != nil {
			return DownloadedFiling{}, false, eris.Wrapf(err, "sec: local filing %s", f.SourcePath)
		}
		return DownloadedFiling{Filing: f, LocalPath: f.SourcePath, SHA256: sha}, false, nil
	}

	name := f.PrimaryDocument
	if name == "" {
		name = fmt.Sprintf("%s_%d.html", f.CIK, f.FilingYear)
	}
	local := filepath.Join(p.cfg.Paths.RawDir(), "sec", name)
	sha, fetched, err := p.fetch.DownloadWithCache(ctx, f.SourceURL, local, "")
	if err != nil {
		return DownloadedFiling{}, false, eris.Wrapf(err, "sec: download %s", f.SourceURL)
	}
	return DownloadedFiling{Filing: f, LocalPath: local, SHA256: sha}, fetched, nil
}

// readFilingsIndex parses the filings index CSV. Required columns: cik,
// filing_year. One of file_path or source_url must be present per row. The
// optional company_name column feeds the linkage universe.
func (p *Pipeline) readFilingsIndex() ([]model.Filing, map[string]string, error) {
	f, err := os.Open(p.cfg.SEC.FilingsIndex)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sec: open filings index %s", p.cfg.SEC.FilingsIndex)
	}
	defer f.Close()

	header, rows, err := fetcher.ReadCSV(f)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sec: parse filings index %s", p.cfg.SEC.FilingsIndex)
	}
	idx := fetcher.ColumnIndex(header)
	for _, col := range []string{"cik", "filing_year"} {
		if _, ok := idx[col]; !ok {
			return nil, nil, eris.Errorf("sec: filings index missing column %q", col)
		}
	}

	var filings []model.Filing
	names := map[string]string{}
	for i, row := range rows {
		year, err := strconv.Atoi(fetcher.Field(row, idx, "filing_year"))
		if err != nil {
			return nil, nil, eris.Wrapf(err, "sec: filings index row %d: bad filing_year", i+2)
		}
		fl := model.Filing{
			CIK:             fetcher.Field(row, idx, "cik"),
			FilingYear:      year,
			Form:            fetcher.Field(row, idx, "form"),
			SourcePath:      fetcher.Field(row, idx, "file_path"),
			SourceURL:       fetcher.Field(row, idx, "source_url"),
			PrimaryDocument: fetcher.Field(row, idx, "primary_document"),
		}
		if fl.CIK == "" {
			return nil, nil, eris.Errorf("sec: filings index row %d: empty cik", i+2)
		}
		if fl.SourcePath == "" && fl.SourceURL == "" {
			return nil, nil, eris.Errorf("sec: filings index row %d: needs file_path or source_url", i+2)
		}
		if name := fetcher.Field(row, idx, "company_name"); name != "" {
			names[fl.CIK] = name
		}
		filings = append(filings, fl)
	}
	return filings, names, nil
}
