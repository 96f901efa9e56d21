package qbank

import (
	"fmt"
	"strings"

	"github.com/examcraft/qbank/internal/format"
)

// FieldType classifies how a column is validated.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldEnum
)

// FieldSpec defines one expected column of the question import file.
type FieldSpec struct {
	Name        string
	Type        FieldType
	Required    bool
	Encrypted   bool
	Description string

	// Allowed restricts FieldEnum values (case-insensitive).
	Allowed []string

	// Min/Max bound FieldNumeric values when MaxSet is true for Max.
	Min    float64
	Max    float64
	MaxSet bool
}

// QuestionFieldSpecs defines the expected columns for question import files.
var QuestionFieldSpecs = []FieldSpec{
	{Name: "stem", Type: FieldText, Required: true, Encrypted: true,
		Description: "Question text shown to the candidate"},
	{Name: "answer", Type: FieldText, Required: true, Encrypted: true,
		Description: "Correct answer"},
	{Name: "analysis", Type: FieldText, Encrypted: true,
		Description: "Optional worked explanation"},
	{Name: "subject", Type: FieldText, Required: true,
		Description: "Subject area, e.g. math"},
	{Name: "exam_type", Type: FieldText, Required: true,
		Description: "Exam the question belongs to, e.g. final"},
	{Name: "year", Type: FieldNumeric, Required: true, Min: 1900, Max: 2100, MaxSet: true,
		Description: "Exam year, four digits"},
	{Name: "difficulty", Type: FieldEnum, Required: true,
		Allowed:     []string{"easy", "medium", "hard"},
		Description: "One of easy, medium, hard"},
	{Name: "status", Type: FieldEnum,
		Allowed:     []string{"active", "draft", "archived"},
		Description: "Lifecycle state, defaults to draft"},
	{Name: "score", Type: FieldNumeric, Min: 0, Max: 100, MaxSet: true,
		Description: "Points awarded, 0-100"},
}

// Headers returns the column names of specs in declaration order.
func Headers(specs []FieldSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Descriptions returns the column guidance map used by template generation.
func Descriptions(specs []FieldSpec) map[string]string {
	m := make(map[string]string, len(specs))
	for _, s := range specs {
		m[s.Name] = s.Description
	}
	return m
}

// validateRow checks one row against the specs and returns field-level
// errors, empty when the row is acceptable.
func validateRow(row format.RowRecord, rowNum int, specs []FieldSpec) []format.RowError {
	var errs []format.RowError

	fail := func(field, message string) {
		errs = append(errs, format.RowError{
			Row: rowNum, Field: field, Kind: "validation", Message: message,
		})
	}

	for _, spec := range specs {
		cell := row.Value(spec.Name)

		if cell.IsEmpty() {
			if spec.Required {
				fail(spec.Name, "required field is empty")
			}
			continue
		}

		switch spec.Type {
		case FieldNumeric:
			n, ok := format.ParseNumber(cell.String())
			if !ok {
				fail(spec.Name, fmt.Sprintf("invalid number: %q", cell.String()))
				continue
			}
			if n < spec.Min {
				fail(spec.Name, fmt.Sprintf("value %v is below the minimum %v", n, spec.Min))
			}
			if spec.MaxSet && n > spec.Max {
				fail(spec.Name, fmt.Sprintf("value %v is above the maximum %v", n, spec.Max))
			}

		case FieldEnum:
			value := strings.ToLower(strings.TrimSpace(cell.String()))
			found := false
			for _, allowed := range spec.Allowed {
				if value == allowed {
					found = true
					break
				}
			}
			if !found {
				fail(spec.Name, fmt.Sprintf("invalid value %q, allowed: %s",
					cell.String(), strings.Join(spec.Allowed, ", ")))
			}
		}
	}

	return errs
}
