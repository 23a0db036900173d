package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const (
	xlsxParserID     = "xlsx"
	defaultXLSXLimit = 100
)

var errNoSheets = errors.New("workbook has no sheets")

// XLSXConfig configures the spreadsheet parser.
type XLSXConfig struct {
	// Sheet defaults to the first sheet of the workbook.
	Sheet     string `mapstructure:"sheet"`
	NoHeaders bool   `mapstructure:"no_headers"`
	Limit     int    `mapstructure:"limit"`
}

// XLSXParser reads spreadsheet rows in chunks. The parse stage pointer is the
// index of the next data row.
type XLSXParser struct {
	defaults map[string]any
	log      infralogger.Logger
}

// NewXLSXFromConfig is the registry factory for "xlsx".
func NewXLSXFromConfig(cfg map[string]any, log infralogger.Logger) (Parser, error) {
	var probe XLSXConfig
	if err := decode(cfg, &domain.Source{}, &probe); err != nil {
		return nil, err
	}
	return &XLSXParser{defaults: cfg, log: log}, nil
}

func (p *XLSXParser) Parse(ctx context.Context, src *domain.Source, fr *domain.FetchResult) (*domain.ParserResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cfg XLSXConfig
	if err := decode(p.defaults, src, &cfg); err != nil {
		return nil, parseErr(src, xlsxParserID, err)
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultXLSXLimit
	}

	path, err := fr.GetFilePath()
	if err != nil {
		return nil, parseErr(src, xlsxParserID, err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, parseErr(src, xlsxParserID, err)
	}
	defer func() { _ = f.Close() }()

	sheet := cfg.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, parseErr(src, xlsxParserID, errNoSheets)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, parseErr(src, xlsxParserID, fmt.Errorf("read sheet %q: %w", sheet, err))
	}

	var headers []string
	if !cfg.NoHeaders && len(rows) > 0 {
		headers = normalizeHeaders(rows[0])
		rows = rows[1:]
	}

	st := src.Pipeline().State(domain.StageParse)
	start := min(max(st.Pointer, 0), int64(len(rows)))
	end := min(start+int64(limit), int64(len(rows)))

	items := make([]domain.Item, 0, end-start)
	for _, row := range rows[start:end] {
		if isBlankRow(row) {
			continue
		}
		items = append(items, csvRow(headers, row))
	}

	st.Pointer = end
	st.Report(int64(len(rows)), end)
	p.log.Debug("Parsed spreadsheet chunk",
		infralogger.SourceID(src.ID),
		infralogger.String("sheet", sheet),
		infralogger.Int("rows", len(items)),
	)
	return &domain.ParserResult{Items: items}, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
