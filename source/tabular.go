package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/poiesic/recall/core"
)

// errMalformed marks content that was read but could not be parsed.
var errMalformed = errors.New("malformed tabular content")

// TabularHandler reads records from a local CSV, TSV, XLSX or JSONL file.
// The first row (or the keys of each JSON object) names the fields. When no
// id column exists, records get 1-based sequential ids.
type TabularHandler struct {
	path   string
	format Format
	logger *slog.Logger
}

var _ Handler = (*TabularHandler)(nil)

// NewTabularHandler creates a handler for the file at path.
func NewTabularHandler(path string, logger *slog.Logger) *TabularHandler {
	if logger == nil {
		logger = slog.Default()
	}
	format := FormatOf(path)
	return &TabularHandler{
		path:   path,
		format: format,
		logger: logger.With("component", "tabular-handler", "format", string(format)),
	}
}

// Kind implements Handler.
func (h *TabularHandler) Kind() Kind {
	return KindTabular
}

// Identifier implements Handler.
func (h *TabularHandler) Identifier() string {
	return h.path
}

// Format returns the detected file format.
func (h *TabularHandler) Format() Format {
	return h.format
}

// Metadata implements Handler.
func (h *TabularHandler) Metadata() map[string]string {
	return map[string]string{
		MetaSourceType: string(KindTabular),
		MetaPathOrURL:  h.path,
		MetaFormat:     string(h.format),
	}
}

// Validate implements Handler.
func (h *TabularHandler) Validate(batch core.Batch) error {
	return validate(batch)
}

// Parse reads the file. A missing or unreadable file is
// core.ErrSourceUnreachable; unparseable content yields an empty batch.
func (h *TabularHandler) Parse(ctx context.Context) (core.Batch, error) {
	empty := core.Batch{Source: h.path, Records: []core.Record{}}

	var (
		records []core.Record
		err     error
	)
	switch h.format {
	case FormatXLSX:
		records, err = h.readXLSX(ctx)
	case FormatJSONL:
		records, err = h.readJSONL(ctx)
	case FormatTSV:
		records, err = h.readDelimited(ctx, '\t')
	default:
		records, err = h.readDelimited(ctx, ',')
	}

	switch {
	case err == nil:
	case errors.Is(err, errMalformed):
		h.logger.Warn("failed to parse source", "path", h.path, "err", err)
		return empty, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return empty, err
	default:
		return empty, fmt.Errorf("%w: %w", core.ErrSourceUnreachable, err)
	}

	h.logger.Debug("parsed source", "path", h.path, "records", len(records))
	return core.Batch{Source: h.path, Records: records}, nil
}

func (h *TabularHandler) readDelimited(ctx context.Context, comma rune) ([]core.Record, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read file")
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformed, eris.Wrap(err, "tabular: read row"))
		}
		rows = append(rows, row)
	}
	return rowsToRecords(rows)
}

func (h *TabularHandler) readXLSX(ctx context.Context) ([]core.Record, error) {
	if _, err := os.Stat(h.path); err != nil {
		return nil, eris.Wrap(err, "xlsx: stat file")
	}
	f, err := xlsx.OpenFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, eris.Wrap(err, "xlsx: open file"))
	}
	if len(f.Sheets) == 0 {
		return nil, nil
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		blank := true
		for j, cell := range row.Cells {
			cells[j] = cell.String()
			if strings.TrimSpace(cells[j]) != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, cells)
		}
	}
	return rowsToRecords(rows)
}

func (h *TabularHandler) readJSONL(ctx context.Context) ([]core.Record, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return nil, eris.Wrap(err, "jsonl: open file")
	}
	defer f.Close()

	var records []core.Record
	hasID := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		decoder := json.NewDecoder(bytes.NewReader(text))
		decoder.UseNumber()
		var obj map[string]any
		if err := decoder.Decode(&obj); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformed, eris.Wrapf(err, "jsonl: decode line %d", line))
		}

		fields := make(map[string]any, len(obj))
		for k, v := range obj {
			k = strings.TrimSpace(k)
			if k == core.FieldRawText {
				fields[k] = jsonText(v)
				continue
			}
			fields[k] = jsonScalar(v)
		}
		record := core.NewRecord(fields)
		if record.Has(core.FieldID) {
			hasID = true
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "jsonl: scan")
	}

	if !hasID {
		for i, r := range records {
			records[i] = r.With(core.FieldID, int64(i+1))
		}
	}
	return records, nil
}

// rowsToRecords turns a header row plus data rows into records. Short rows
// leave trailing fields absent; rows longer than the header are malformed.
// Cell types are inferred per column, and raw_text is always text.
func rowsToRecords(rows [][]string) ([]core.Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	hasID := false
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(name)
		if header[i] == core.FieldID {
			hasID = true
		}
	}

	data := rows[1:]
	columns := make([][]string, len(header))
	for n, row := range data {
		if len(row) > len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", errMalformed, n+2, len(row), len(header))
		}
		for i, cell := range row {
			columns[i] = append(columns[i], cell)
		}
	}
	kinds := make([]core.CellKind, len(header))
	for i, name := range header {
		if name != core.FieldRawText {
			kinds[i] = core.InferColumn(columns[i])
		}
	}

	records := make([]core.Record, 0, len(data))
	for n, row := range data {
		fields := make(map[string]any, len(header)+1)
		for i, cell := range row {
			if header[i] == "" {
				continue
			}
			fields[header[i]] = core.ParseAs(cell, kinds[i])
		}
		if !hasID {
			fields[core.FieldID] = int64(n + 1)
		}
		records = append(records, core.NewRecord(fields))
	}
	return records, nil
}

// jsonScalar converts a decoded JSON value to a record scalar. Numbers keep
// integer form when they have one; nested values are dropped.
func jsonScalar(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string, bool:
		return t
	default:
		return nil
	}
}

// jsonText keeps a scalar as text, spelled as it appeared in the JSON.
func jsonText(v any) any {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return jsonScalar(v)
	}
}
