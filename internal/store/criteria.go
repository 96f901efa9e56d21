package store

import (
	"fmt"
	"strings"
)

// DefaultPageSize bounds a single query when the caller does not set one.
const DefaultPageSize = 500

// Criteria selects questions for export. Values within one field are
// alternatives (OR); fields combine conjunctively (AND). Zero-valued fields
// do not constrain the query.
type Criteria struct {
	Subjects     []string
	ExamTypes    []string
	Difficulties []string
	YearFrom     int
	YearTo       int

	// Status filters on lifecycle state. Empty means live rows only;
	// "deleted" selects soft-deleted rows; "all" selects both. Any other
	// value matches the status column on live rows.
	Status string

	// Page is 1-based.
	Page     int
	PageSize int
}

// buildWhere renders the WHERE clause and its ordered arguments. Every
// Status value except "all" constrains deleted_at so soft-deleted rows never
// leak into normal exports.
func (c Criteria) buildWhere() (string, []interface{}) {
	var conds []string
	var args []interface{}

	next := func() int { return len(args) + 1 }

	if len(c.Subjects) > 0 {
		conds = append(conds, fmt.Sprintf("subject = ANY($%d)", next()))
		args = append(args, c.Subjects)
	}
	if len(c.ExamTypes) > 0 {
		conds = append(conds, fmt.Sprintf("exam_type = ANY($%d)", next()))
		args = append(args, c.ExamTypes)
	}
	if len(c.Difficulties) > 0 {
		conds = append(conds, fmt.Sprintf("difficulty = ANY($%d)", next()))
		args = append(args, c.Difficulties)
	}
	if c.YearFrom > 0 {
		conds = append(conds, fmt.Sprintf("year >= $%d", next()))
		args = append(args, c.YearFrom)
	}
	if c.YearTo > 0 {
		conds = append(conds, fmt.Sprintf("year <= $%d", next()))
		args = append(args, c.YearTo)
	}

	switch c.Status {
	case "":
		conds = append(conds, "deleted_at IS NULL")
	case "deleted":
		conds = append(conds, "deleted_at IS NOT NULL")
	case StatusAll:
		// live and soft-deleted rows together
	default:
		conds = append(conds, fmt.Sprintf("status = $%d", next()))
		args = append(args, c.Status)
		conds = append(conds, "deleted_at IS NULL")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildLimit renders the LIMIT/OFFSET tail with placeholders continuing
// after the given argument count.
func (c Criteria) buildLimit(argCount int) string {
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount+1, argCount+2)
}

func (c Criteria) limitArgs() []interface{} {
	size := c.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := c.Page
	if page <= 0 {
		page = 1
	}
	return []interface{}{size, (page - 1) * size}
}
