package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

const (
	csvParserID     = "csv"
	defaultCSVLimit = 50
	utf8BOM         = "\ufeff"
)

// CSVConfig configures the CSV parser.
type CSVConfig struct {
	// Delimiter is a single character, or "TAB".
	Delimiter string `mapstructure:"delimiter"`
	// NoHeaders names columns column_0, column_1, ... instead of reading a header row.
	NoHeaders bool `mapstructure:"no_headers"`
	// Encoding is a WHATWG encoding label such as "windows-1252".
	Encoding string `mapstructure:"encoding"`
	// Limit is the number of rows returned per call.
	Limit int `mapstructure:"limit"`
}

// CSVParser reads CSV files in chunks, resuming from a byte offset kept in
// the parse stage pointer.
type CSVParser struct {
	defaults map[string]any
	log      infralogger.Logger
}

// NewCSVFromConfig is the registry factory for "csv".
func NewCSVFromConfig(cfg map[string]any, log infralogger.Logger) (Parser, error) {
	var probe CSVConfig
	if err := decode(cfg, &domain.Source{}, &probe); err != nil {
		return nil, err
	}
	if _, err := csvDelimiter(probe.Delimiter); err != nil {
		return nil, err
	}
	return &CSVParser{defaults: cfg, log: log}, nil
}

func csvDelimiter(s string) (rune, error) {
	switch {
	case s == "":
		return ',', nil
	case strings.EqualFold(s, "tab"), s == `\t`:
		return '\t', nil
	case utf8.RuneCountInString(s) == 1:
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	default:
		return 0, fmt.Errorf("csv delimiter must be a single character, got %q", s)
	}
}

func csvDecoder(label string) (*encoding.Decoder, error) {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder(), nil
}

func (p *CSVParser) Parse(ctx context.Context, src *domain.Source, fr *domain.FetchResult) (*domain.ParserResult, error) {
	var cfg CSVConfig
	if err := decode(p.defaults, src, &cfg); err != nil {
		return nil, parseErr(src, csvParserID, err)
	}
	comma, err := csvDelimiter(cfg.Delimiter)
	if err != nil {
		return nil, parseErr(src, csvParserID, err)
	}
	dec, err := csvDecoder(cfg.Encoding)
	if err != nil {
		return nil, parseErr(src, csvParserID, err)
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultCSVLimit
	}

	path, err := fr.GetFilePath()
	if err != nil {
		return nil, parseErr(src, csvParserID, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, parseErr(src, csvParserID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, parseErr(src, csvParserID, err)
	}
	size := info.Size()
	st := src.Pipeline().State(domain.StageParse)

	var headers []string
	if !cfg.NoHeaders {
		rr := newRecordReader(f, 0, dec, comma)
		fields, next, readErr := rr.next()
		if errors.Is(readErr, io.EOF) {
			st.Report(0, 0)
			return &domain.ParserResult{}, nil
		}
		if readErr != nil {
			return nil, parseErr(src, csvParserID, readErr)
		}
		headers = normalizeHeaders(fields)
		st.Pointer = max(st.Pointer, next)
	}

	if _, err = f.Seek(st.Pointer, io.SeekStart); err != nil {
		return nil, parseErr(src, csvParserID, err)
	}
	rr := newRecordReader(f, st.Pointer, dec, comma)

	items := make([]domain.Item, 0, limit)
	for len(items) < limit {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		fields, next, readErr := rr.next()
		if errors.Is(readErr, io.EOF) {
			st.Pointer = size
			break
		}
		if readErr != nil {
			return nil, parseErr(src, csvParserID, fmt.Errorf("row at byte %d: %w", st.Pointer, readErr))
		}
		st.Pointer = next
		if len(fields) == 0 {
			continue
		}
		items = append(items, csvRow(headers, fields))
	}

	st.Report(size, st.Pointer)
	p.log.Debug("Parsed CSV chunk",
		infralogger.SourceID(src.ID),
		infralogger.Int("rows", len(items)),
		infralogger.Int64("offset", st.Pointer),
		infralogger.Int64("size", size),
	)
	return &domain.ParserResult{Items: items}, nil
}

func normalizeHeaders(fields []string) []string {
	headers := make([]string, len(fields))
	for i, h := range fields {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}

func csvRow(headers, fields []string) domain.Item {
	item := make(domain.Item, max(len(headers), len(fields)))
	for i, v := range fields {
		key := "column_" + strconv.Itoa(i)
		if i < len(headers) && headers[i] != "" {
			key = headers[i]
		}
		item[key] = v
	}
	for i := len(fields); i < len(headers); i++ {
		item[headers[i]] = ""
	}
	return item
}

// recordReader reads one logical CSV record at a time while tracking the
// byte offset of the underlying file. A record spans physical lines until
// its quotes balance.
type recordReader struct {
	r      *bufio.Reader
	offset int64
	dec    *encoding.Decoder
	comma  rune
}

func newRecordReader(r io.Reader, offset int64, dec *encoding.Decoder, comma rune) *recordReader {
	return &recordReader{r: bufio.NewReader(r), offset: offset, dec: dec, comma: comma}
}

// next returns the fields of the next record and the offset just past it.
// A blank line yields no fields.
func (rr *recordReader) next() ([]string, int64, error) {
	var buf []byte
	for {
		line, err := rr.r.ReadBytes('\n')
		rr.offset += int64(len(line))
		buf = append(buf, line...)
		if errors.Is(err, io.EOF) {
			if len(buf) == 0 {
				return nil, rr.offset, io.EOF
			}
			break
		}
		if err != nil {
			return nil, rr.offset, err
		}
		if bytes.Count(buf, []byte{'"'})%2 == 0 {
			break
		}
	}

	if rr.dec != nil {
		decoded, err := rr.dec.Bytes(buf)
		if err != nil {
			return nil, rr.offset, fmt.Errorf("decode: %w", err)
		}
		buf = decoded
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, rr.offset, nil
	}

	cr := csv.NewReader(bytes.NewReader(buf))
	cr.Comma = rr.comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	fields, err := cr.Read()
	if err != nil {
		return nil, rr.offset, err
	}
	return fields, rr.offset, nil
}
