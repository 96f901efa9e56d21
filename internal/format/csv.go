package format

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
	"unicode/utf8"
)

func init() {
	Register(&CSVHandler{}, "csv", "txt")
}

// CSVHandler implements Handler for delimited-text data.
type CSVHandler struct{}

// Name returns the registry name for this handler.
func (h *CSVHandler) Name() string { return "csv" }

// ImpliesHeaders reports false: delimited text has no inherent column names.
func (h *CSVHandler) ImpliesHeaders() bool { return false }

// Parse reads a delimited-text buffer into row records. Variable field counts
// and lazy quoting are tolerated; only an unreadable buffer is a hard error.
func (h *CSVHandler) Parse(buf []byte, opts ParseOptions) *ParseResult {
	if len(bytes.TrimSpace(buf)) == 0 {
		return containerFailure("empty file")
	}

	records, err := readCSV(sanitizeUTF8(buf))
	if err != nil {
		return containerFailure(fmt.Sprintf("parse delimited text: %v", err))
	}
	if len(records) == 0 {
		return containerFailure("no rows found")
	}

	var headers []string
	var data [][]string
	if opts.HasHeaders {
		headers = normalizeHeaders(records[0])
		data = records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = syntheticHeader(i)
		}
		data = records
	}

	result := &ParseResult{Headers: headers}
	for _, cells := range data {
		if opts.SkipEmptyRows && isEmptyCells(cells) {
			continue
		}
		if opts.MaxRows > 0 && len(result.Rows) >= opts.MaxRows {
			break
		}
		result.Rows = append(result.Rows, rowFromCells(headers, cells))
	}

	return result
}

// Export writes rows as RFC 4180 delimited text. Column order follows the
// headers argument exactly; row order follows the input.
func (h *CSVHandler) Export(rows []RowRecord, headers []string, opts ExportOptions) (*ExportResult, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if opts.IncludeHeaders {
		if err := w.Write(headers); err != nil {
			return nil, fmt.Errorf("write headers: %w", err)
		}
	}

	record := make([]string, len(headers))
	for _, row := range rows {
		for i, col := range headers {
			record[i] = row.Value(col).String()
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush writer: %w", err)
	}

	return csvResult(buf.Bytes(), exportBaseName(opts)), nil
}

// GenerateTemplate produces a downloadable starter file: an optional
// description row, the header row, and synthetic example rows.
func (h *CSVHandler) GenerateTemplate(headers []string, opts TemplateOptions) (*ExportResult, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if len(opts.Descriptions) > 0 {
		desc := make([]string, len(headers))
		for i, col := range headers {
			desc[i] = opts.Descriptions[col]
		}
		if err := w.Write(desc); err != nil {
			return nil, fmt.Errorf("write description row: %w", err)
		}
	}

	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}

	if opts.IncludeSamples {
		record := make([]string, len(headers))
		for _, row := range sampleRows(headers, opts.SampleCount) {
			for i, col := range headers {
				record[i] = row.Value(col).String()
			}
			if err := w.Write(record); err != nil {
				return nil, fmt.Errorf("write sample row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush writer: %w", err)
	}

	return csvResult(buf.Bytes(), "template"), nil
}

// ValidateContainer checks that the buffer yields at least one readable record.
func (h *CSVHandler) ValidateContainer(buf []byte) error {
	if len(bytes.TrimSpace(buf)) == 0 {
		return fmt.Errorf("empty file")
	}
	r := csv.NewReader(bytes.NewReader(sanitizeUTF8(buf)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if _, err := r.Read(); err != nil {
		return fmt.Errorf("unreadable delimited text: %w", err)
	}
	return nil
}

func csvResult(data []byte, base string) *ExportResult {
	return &ExportResult{
		Buffer:   data,
		Filename: fmt.Sprintf("%s_%s.csv", base, time.Now().Format("20060102_150405")),
		MimeType: "text/csv",
		Size:     len(data),
	}
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD so downstream
// consumers always see valid UTF-8.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
