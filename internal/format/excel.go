package format

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

func init() {
	Register(&ExcelHandler{}, "xlsx", "xlsm")
}

const (
	excelSheetName = "Sheet1"
	excelMimeType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExcelHandler implements Handler for spreadsheet (XLSX) data.
type ExcelHandler struct{}

// Name returns the registry name for this handler.
func (h *ExcelHandler) Name() string { return "xlsx" }

// ImpliesHeaders reports false: workbook cells carry no inherent column names.
func (h *ExcelHandler) ImpliesHeaders() bool { return false }

// Parse reads the first sheet of a workbook into row records. A corrupt
// workbook or a workbook without sheets is a container-level failure.
func (h *ExcelHandler) Parse(buf []byte, opts ParseOptions) *ParseResult {
	f, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return containerFailure(fmt.Sprintf("open workbook: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return containerFailure("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return containerFailure(fmt.Sprintf("read sheet %q: %v", sheets[0], err))
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

// Export writes rows into a single-sheet workbook using the stream writer.
func (h *ExcelHandler) Export(rows []RowRecord, headers []string, opts ExportOptions) (*ExportResult, error) {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(excelSheetName)
	if err != nil {
		return nil, fmt.Errorf("create stream writer: %w", err)
	}

	rowIdx := 1
	if opts.IncludeHeaders {
		headerCells := make([]interface{}, len(headers))
		if opts.Styled {
			styleID, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
			if err != nil {
				return nil, fmt.Errorf("create header style: %w", err)
			}
			for i, col := range headers {
				headerCells[i] = excelize.Cell{StyleID: styleID, Value: col}
			}
		} else {
			for i, col := range headers {
				headerCells[i] = col
			}
		}
		if err := writeStreamRow(sw, rowIdx, headerCells); err != nil {
			return nil, err
		}
		rowIdx++
	}

	for _, row := range rows {
		values := make([]interface{}, len(headers))
		for i, col := range headers {
			values[i] = excelValue(row.Value(col))
		}
		if err := writeStreamRow(sw, rowIdx, values); err != nil {
			return nil, err
		}
		rowIdx++
	}

	return excelFinish(f, sw, exportBaseName(opts))
}

// GenerateTemplate produces a starter workbook: an optional description row,
// a bold header row, and synthetic example rows.
func (h *ExcelHandler) GenerateTemplate(headers []string, opts TemplateOptions) (*ExportResult, error) {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(excelSheetName)
	if err != nil {
		return nil, fmt.Errorf("create stream writer: %w", err)
	}

	rowIdx := 1
	if len(opts.Descriptions) > 0 {
		desc := make([]interface{}, len(headers))
		for i, col := range headers {
			desc[i] = opts.Descriptions[col]
		}
		if err := writeStreamRow(sw, rowIdx, desc); err != nil {
			return nil, err
		}
		rowIdx++
	}

	styleID, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	headerCells := make([]interface{}, len(headers))
	for i, col := range headers {
		headerCells[i] = excelize.Cell{StyleID: styleID, Value: col}
	}
	if err := writeStreamRow(sw, rowIdx, headerCells); err != nil {
		return nil, err
	}
	rowIdx++

	if opts.IncludeSamples {
		for _, row := range sampleRows(headers, opts.SampleCount) {
			values := make([]interface{}, len(headers))
			for i, col := range headers {
				values[i] = excelValue(row.Value(col))
			}
			if err := writeStreamRow(sw, rowIdx, values); err != nil {
				return nil, err
			}
			rowIdx++
		}
	}

	return excelFinish(f, sw, "template")
}

// ValidateContainer checks the workbook opens and exposes at least one sheet.
func (h *ExcelHandler) ValidateContainer(buf []byte) error {
	f, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("unreadable workbook: %w", err)
	}
	defer f.Close()

	if len(f.GetSheetList()) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}
	return nil
}

func writeStreamRow(sw *excelize.StreamWriter, rowIdx int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return fmt.Errorf("cell coordinate for row %d: %w", rowIdx, err)
	}
	if err := sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("write row %d: %w", rowIdx, err)
	}
	return nil
}

func excelFinish(f *excelize.File, sw *excelize.StreamWriter, base string) (*ExportResult, error) {
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush stream writer: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	data := buf.Bytes()
	return &ExportResult{
		Buffer:   data,
		Filename: fmt.Sprintf("%s_%s.xlsx", base, time.Now().Format("20060102_150405")),
		MimeType: excelMimeType,
		Size:     len(data),
	}, nil
}

// excelValue maps a Cell to the native type excelize serializes best. Dates
// are written in their canonical text form so re-parsing stays stable.
func excelValue(c Cell) interface{} {
	switch c.Kind {
	case KindNumber:
		return c.Number
	case KindBool:
		return c.Bool
	default:
		return c.String()
	}
}
