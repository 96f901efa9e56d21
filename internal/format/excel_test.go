package format

import (
	"strings"
	"testing"
)

func TestExcelRoundTrip(t *testing.T) {
	h, ok := Get("xlsx")
	if !ok {
		t.Fatal("xlsx handler not registered")
	}

	headers := []string{"name", "score", "active"}
	rows := []RowRecord{
		makeRow(headers, []Cell{TextCell("alice"), NumberCell(42), BoolCell(true)}),
		makeRow(headers, []Cell{TextCell("bob"), NumberCell(17.5), BoolCell(false)}),
	}

	exported, err := h.Export(rows, headers, ExportOptions{IncludeHeaders: true, Styled: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exported.MimeType != excelMimeType {
		t.Errorf("MimeType = %q", exported.MimeType)
	}
	if !strings.HasSuffix(exported.Filename, ".xlsx") {
		t.Errorf("Filename = %q, want *.xlsx", exported.Filename)
	}

	parsed := h.Parse(exported.Buffer, ParseOptions{HasHeaders: true})
	if len(parsed.Errors) != 0 {
		t.Fatalf("parse errors: %v", parsed.Errors)
	}
	if len(parsed.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(parsed.Rows))
	}
	for i, want := range rows {
		for _, col := range headers {
			a, b := want.Value(col), parsed.Rows[i].Value(col)
			if a.String() != b.String() {
				t.Errorf("row %d col %s: %q -> %q", i, col, a.String(), b.String())
			}
		}
	}
}

func TestExcelParseCorruptBuffer(t *testing.T) {
	h, _ := Get("xlsx")
	res := h.Parse([]byte("this is not a zip archive"), ParseOptions{HasHeaders: true})

	if len(res.Rows) != 0 {
		t.Fatalf("len(Rows) = %d, want 0", len(res.Rows))
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 0 || res.Errors[0].Kind != ErrKindParse {
		t.Fatalf("Errors = %v, want one row-0 parse error", res.Errors)
	}
}

func TestExcelValidateContainer(t *testing.T) {
	h, _ := Get("xlsx")

	good, err := h.Export(nil, []string{"a"}, ExportOptions{IncludeHeaders: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if err := h.ValidateContainer(good.Buffer); err != nil {
		t.Errorf("valid workbook rejected: %v", err)
	}
	if err := h.ValidateContainer([]byte("garbage")); err == nil {
		t.Error("corrupt buffer accepted, want error")
	}
}

func TestExcelGenerateTemplate(t *testing.T) {
	h, _ := Get("xlsx")
	headers := []string{"stem", "answer"}

	res, err := h.GenerateTemplate(headers, TemplateOptions{
		IncludeSamples: true,
		SampleCount:    2,
		Descriptions:   map[string]string{"stem": "question text"},
	})
	if err != nil {
		t.Fatalf("GenerateTemplate: %v", err)
	}
	if !strings.HasPrefix(res.Filename, "template_") {
		t.Errorf("Filename = %q, want template_*", res.Filename)
	}

	// Description row is not a header, so parse without headers and count:
	// description + header + 2 samples.
	parsed := h.Parse(res.Buffer, ParseOptions{HasHeaders: false})
	if len(parsed.Errors) != 0 {
		t.Fatalf("parse errors: %v", parsed.Errors)
	}
	if len(parsed.Rows) != 4 {
		t.Fatalf("len(Rows) = %d, want 4", len(parsed.Rows))
	}
	if got := parsed.Rows[1].Value("A").String(); got != "stem" {
		t.Errorf("header row first cell = %q, want stem", got)
	}
	if got := parsed.Rows[2].Value("A").String(); got != "example stem 1" {
		t.Errorf("first sample cell = %q, want example stem 1", got)
	}
}

func makeRow(headers []string, cells []Cell) RowRecord {
	row := NewRow(len(headers))
	for i, h := range headers {
		row.Set(h, cells[i])
	}
	return row
}
