package format

import (
	"strings"
	"testing"
)

func TestCSVParseBasic(t *testing.T) {
	h, ok := Get("csv")
	if !ok {
		t.Fatal("csv handler not registered")
	}

	buf := []byte("name,score,active\nalice,42,true\nbob,17,false\n")
	res := h.Parse(buf, ParseOptions{HasHeaders: true})

	if len(res.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", res.Errors)
	}
	if want := []string{"name", "score", "active"}; len(res.Headers) != 3 ||
		res.Headers[0] != want[0] || res.Headers[1] != want[1] || res.Headers[2] != want[2] {
		t.Fatalf("Headers = %v, want %v", res.Headers, want)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}

	row := res.Rows[0]
	if got := row.Value("name"); got.Kind != KindText || got.Text != "alice" {
		t.Errorf("name = (%v, %q), want text alice", got.Kind, got.Text)
	}
	if got := row.Value("score"); got.Kind != KindNumber || got.Number != 42 {
		t.Errorf("score = (%v, %v), want number 42", got.Kind, got.Number)
	}
	if got := row.Value("active"); got.Kind != KindBool || !got.Bool {
		t.Errorf("active = (%v, %v), want bool true", got.Kind, got.Bool)
	}
}

func TestCSVParseShapeMismatch(t *testing.T) {
	h, _ := Get("csv")

	// Row 2 is short, row 3 has an extra cell. Neither is an error.
	buf := []byte("a,b,c\n1,2,3\n4,5\n6,7,8,9\n")
	res := h.Parse(buf, ParseOptions{HasHeaders: true})

	if len(res.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", res.Errors)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3", len(res.Rows))
	}
	if got := res.Rows[1].Value("c"); !got.IsEmpty() {
		t.Errorf("short row cell c = %q, want empty", got.String())
	}
	if got := res.Rows[2].Value("c"); got.String() != "8" {
		t.Errorf("long row cell c = %q, want 8 (extras truncated)", got.String())
	}
}

func TestCSVParseEmptyBuffer(t *testing.T) {
	h, _ := Get("csv")
	res := h.Parse([]byte("  \n  "), ParseOptions{HasHeaders: true})

	if len(res.Rows) != 0 {
		t.Fatalf("len(Rows) = %d, want 0", len(res.Rows))
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 0 || res.Errors[0].Kind != ErrKindParse {
		t.Fatalf("Errors = %v, want one row-0 parse error", res.Errors)
	}
}

func TestCSVParseNoHeaders(t *testing.T) {
	h, _ := Get("csv")
	res := h.Parse([]byte("x,y\n1,2\n"), ParseOptions{HasHeaders: false})

	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Headers[0] != "A" || res.Headers[1] != "B" {
		t.Errorf("Headers = %v, want synthetic [A B]", res.Headers)
	}
	if got := res.Rows[0].Value("A"); got.String() != "x" {
		t.Errorf("first row cell A = %q, want x", got.String())
	}
}

func TestCSVParseMaxRowsAndSkipEmpty(t *testing.T) {
	h, _ := Get("csv")
	buf := []byte("a\n1\n\n2\n3\n4\n")
	res := h.Parse(buf, ParseOptions{HasHeaders: true, MaxRows: 3, SkipEmptyRows: true})

	if len(res.Rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3 (truncated, empties skipped)", len(res.Rows))
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none, truncation is not an error", res.Errors)
	}
	if got := res.Rows[2].Value("a"); got.String() != "3" {
		t.Errorf("last row = %q, want 3", got.String())
	}
}

func TestCSVRoundTrip(t *testing.T) {
	h, _ := Get("csv")

	original := "name,code,price\nwidget,007,3.50\ngadget,12,true\n"
	first := h.Parse([]byte(original), ParseOptions{HasHeaders: true})
	if len(first.Errors) != 0 {
		t.Fatalf("first parse errors: %v", first.Errors)
	}

	exported, err := h.Export(first.Rows, first.Headers, ExportOptions{IncludeHeaders: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	second := h.Parse(exported.Buffer, ParseOptions{HasHeaders: true})
	if len(second.Errors) != 0 {
		t.Fatalf("second parse errors: %v", second.Errors)
	}
	if len(second.Rows) != len(first.Rows) {
		t.Fatalf("row count changed: %d -> %d", len(first.Rows), len(second.Rows))
	}
	for i := range first.Rows {
		for _, col := range first.Headers {
			a, b := first.Rows[i].Value(col), second.Rows[i].Value(col)
			if a.Kind != b.Kind || a.String() != b.String() {
				t.Errorf("row %d col %s: (%v, %q) -> (%v, %q)",
					i, col, a.Kind, a.String(), b.Kind, b.String())
			}
		}
	}
}

func TestCSVExportMetadata(t *testing.T) {
	h, _ := Get("csv")
	res, err := h.Export(nil, []string{"a"}, ExportOptions{IncludeHeaders: true, BaseName: "questions"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(res.Filename, "questions_") || !strings.HasSuffix(res.Filename, ".csv") {
		t.Errorf("Filename = %q, want questions_*.csv", res.Filename)
	}
	if res.MimeType != "text/csv" {
		t.Errorf("MimeType = %q, want text/csv", res.MimeType)
	}
	if res.Size != len(res.Buffer) {
		t.Errorf("Size = %d, want %d", res.Size, len(res.Buffer))
	}
}

func TestCSVGenerateTemplate(t *testing.T) {
	h, _ := Get("csv")
	headers := []string{"stem", "answer"}
	res, err := h.GenerateTemplate(headers, TemplateOptions{
		IncludeSamples: true,
		Descriptions:   map[string]string{"stem": "question text", "answer": "correct answer"},
	})
	if err != nil {
		t.Fatalf("GenerateTemplate: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(res.Buffer)), "\n")
	// Description row, header row, two default sample rows.
	if len(lines) != 4 {
		t.Fatalf("template has %d lines, want 4:\n%s", len(lines), res.Buffer)
	}
	if lines[0] != "question text,correct answer" {
		t.Errorf("description row = %q", lines[0])
	}
	if lines[1] != "stem,answer" {
		t.Errorf("header row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "example stem 1") {
		t.Errorf("sample row = %q, want example values", lines[2])
	}
}

func TestCSVValidateContainer(t *testing.T) {
	h, _ := Get("csv")

	if err := h.ValidateContainer([]byte("a,b\n1,2\n")); err != nil {
		t.Errorf("valid buffer rejected: %v", err)
	}
	if err := h.ValidateContainer([]byte("")); err == nil {
		t.Error("empty buffer accepted, want error")
	}
}

func TestRegistryByExtension(t *testing.T) {
	for _, ext := range []string{"csv", ".csv", "TXT"} {
		if _, ok := ByExtension(ext); !ok {
			t.Errorf("ByExtension(%q) not found", ext)
		}
	}
	if _, ok := ByExtension("exe"); ok {
		t.Error("ByExtension(\"exe\") found a handler, want none")
	}
}
