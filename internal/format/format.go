// Package format abstracts the external file formats the bulk pipeline reads
// and writes. Each handler parses a byte buffer into row records, exports row
// records back into a buffer, and synthesizes an annotated template, all
// behind one contract so the pipeline never knows which format it is driving.
package format

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RowError describes a problem with a single row, tagged with its 1-based
// row number relative to the original input (header rows included). Row 0
// marks a container-level failure.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrKindParse tags errors raised while reading the input container.
const ErrKindParse = "parse"

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d, field %q: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ParseOptions controls how a buffer is parsed into rows.
type ParseOptions struct {
	// HasHeaders treats the first row as column names. When false, synthetic
	// alphabetic headers (A, B, ..., AA, ...) are generated.
	HasHeaders bool

	// MaxRows truncates parsing after this many data rows. Zero means no limit.
	// Truncation is not an error.
	MaxRows int

	// SkipEmptyRows drops rows whose cells are all empty or absent.
	SkipEmptyRows bool
}

// ParseResult is the outcome of parsing one buffer.
type ParseResult struct {
	Rows    []RowRecord
	Headers []string
	Errors  []RowError
}

// ExportOptions controls how rows are exported into a buffer.
type ExportOptions struct {
	// IncludeHeaders writes a header row before the data rows.
	IncludeHeaders bool

	// Styled applies presentation styling (bold header row) where the format
	// supports it. Ignored by plain-text formats.
	Styled bool

	// BaseName is the filename stem for the generated file. Defaults to "export".
	BaseName string
}

// ExportResult is a generated file ready for download.
type ExportResult struct {
	Buffer   []byte
	Filename string
	MimeType string
	Size     int
}

// TemplateOptions controls template generation.
type TemplateOptions struct {
	// IncludeSamples appends synthetic example rows below the header row.
	IncludeSamples bool

	// SampleCount is how many example rows to generate (default 2).
	SampleCount int

	// Descriptions maps column name to human-readable guidance. When present,
	// a description row is written above the header row.
	Descriptions map[string]string
}

// Handler is the contract every format implementation satisfies. Handlers are
// stateless; the same instance serves concurrent callers.
//
// Parse never fails past the caller: container-level corruption yields a
// result with zero rows and a single synthetic error at row 0.
type Handler interface {
	Name() string

	// ImpliesHeaders reports whether the format carries column names in its
	// own structure, making ParseOptions.HasHeaders irrelevant. For such
	// formats the first data row is row 1 of the input.
	ImpliesHeaders() bool

	Parse(buf []byte, opts ParseOptions) *ParseResult
	Export(rows []RowRecord, headers []string, opts ExportOptions) (*ExportResult, error)
	GenerateTemplate(headers []string, opts TemplateOptions) (*ExportResult, error)
	ValidateContainer(buf []byte) error
}

var (
	registry   = make(map[string]Handler)
	extensions = make(map[string]string)
	registryMu sync.RWMutex
)

// Register adds a handler to the registry under its name and the given file
// extensions (without the dot). Panics if the name is already registered.
func Register(h Handler, exts ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := strings.ToLower(h.Name())
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("format already registered: %s", name))
	}
	registry[name] = h
	for _, ext := range exts {
		extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = name
	}
}

// Get returns a handler by format name. Returns false if not found.
func Get(name string) (Handler, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	h, ok := registry[strings.ToLower(name)]
	return h, ok
}

// ByExtension returns the handler registered for a file extension.
func ByExtension(ext string) (Handler, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	name, ok := extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return nil, false
	}
	h, ok := registry[name]
	return h, ok
}

// Names returns all registered format names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// containerFailure builds the standard zero-row result for an unreadable buffer.
func containerFailure(message string) *ParseResult {
	return &ParseResult{
		Headers: []string{},
		Errors: []RowError{{
			Row:     0,
			Kind:    ErrKindParse,
			Message: message,
		}},
	}
}

// syntheticHeader generates spreadsheet-style column names: A..Z, AA, AB, ...
func syntheticHeader(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

// normalizeHeaders trims raw header cells and substitutes a positional
// fallback for missing names.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = CleanCell(h)
		if h == "" {
			h = syntheticHeader(i)
		}
		headers[i] = h
	}
	return headers
}

// rowFromCells builds a RowRecord from positional cells. Extra cells beyond
// the header count are truncated; missing trailing cells read as empty.
func rowFromCells(headers []string, cells []string) RowRecord {
	row := NewRow(len(headers))
	for i, h := range headers {
		raw := ""
		if i < len(cells) {
			raw = CleanCell(cells[i])
		}
		row.Set(h, Coerce(raw))
	}
	return row
}

// isEmptyCells reports whether every cell in the slice is blank.
func isEmptyCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// sampleRows synthesizes example rows for template generation. Every header
// gets exactly one populated cell per row.
func sampleRows(headers []string, count int) []RowRecord {
	if count <= 0 {
		count = 2
	}
	rows := make([]RowRecord, 0, count)
	for n := 1; n <= count; n++ {
		row := NewRow(len(headers))
		for _, h := range headers {
			row.Set(h, TextCell(fmt.Sprintf("example %s %d", strings.ToLower(h), n)))
		}
		rows = append(rows, row)
	}
	return rows
}

// exportBaseName applies the default filename stem.
func exportBaseName(opts ExportOptions) string {
	if opts.BaseName != "" {
		return opts.BaseName
	}
	return "export"
}
