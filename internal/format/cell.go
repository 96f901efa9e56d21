package format

// cell.go handles the messy reality of user-provided tabular data:
//   - Multiple date formats (US, EU, ISO, etc.)
//   - Currency symbols and thousand separators in numbers
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value")
//   - Common artifacts (BOM, stray quotes)
//
// Every cell placed in a RowRecord is one of a closed set of scalar kinds;
// coercion to a typed kind only happens when the text form is preserved
// exactly, so values like "007" or "3.50" stay text and survive round trips.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the single canonical text representation for date cells.
const DateLayout = "2006-01-02"

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years that
// would land more than this many years in the future are assumed to be in
// the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
	}
)

// Kind identifies the scalar variant a Cell carries.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBool
	KindDate
)

// Cell is one scalar value in a RowRecord.
type Cell struct {
	Kind   Kind
	Text   string
	Number float64
	Bool   bool
	Date   time.Time
}

// TextCell wraps a string value.
func TextCell(s string) Cell { return Cell{Kind: KindText, Text: s} }

// NumberCell wraps a numeric value.
func NumberCell(f float64) Cell { return Cell{Kind: KindNumber, Number: f} }

// BoolCell wraps a boolean value.
func BoolCell(b bool) Cell { return Cell{Kind: KindBool, Bool: b} }

// DateCell wraps a date value, truncated to day precision.
func DateCell(t time.Time) Cell { return Cell{Kind: KindDate, Date: t} }

// String renders the cell's canonical text form. Dates always use DateLayout.
func (c Cell) String() string {
	switch c.Kind {
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(c.Bool)
	case KindDate:
		return c.Date.Format(DateLayout)
	default:
		return c.Text
	}
}

// IsEmpty reports whether the cell carries no value.
func (c Cell) IsEmpty() bool {
	return c.Kind == KindText && strings.TrimSpace(c.Text) == ""
}

// Coerce parses raw text into the most specific kind whose canonical string
// form reproduces the input exactly. Anything else stays text.
func Coerce(raw string) Cell {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TextCell("")
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if strconv.FormatFloat(n, 'f', -1, 64) == s {
			return NumberCell(n)
		}
		return TextCell(s)
	}

	switch strings.ToLower(s) {
	case "true":
		return BoolCell(true)
	case "false":
		return BoolCell(false)
	}

	if t, ok := ParseDate(s); ok {
		return DateCell(t)
	}

	return TextCell(s)
}

// ParseDate parses a date in any supported layout, handling 2-digit years
// with the pivot rule.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseNumber parses a number leniently: currency symbols, thousands
// separators, and accounting-style negatives ("(123.45)") are stripped first.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseBool parses a boolean leniently.
// Accepts various representations: true/false, yes/no, on/off, t/f, y/n, 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "on", "1":
		return true, true
	case "false", "f", "no", "n", "off", "0":
		return false, true
	default:
		return false, false
	}
}

// CleanCell removes common artifacts from a cell value:
//   - trims whitespace and a UTF-8 BOM
//   - removes the Excel formula prefix (="...")
//   - removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return s
}
