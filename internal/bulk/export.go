package bulk

import (
	"context"
	"fmt"

	"github.com/examcraft/qbank/internal/format"
)

// ExportResult is the final accounting for one export invocation.
type ExportResult struct {
	Success        bool
	Stage          Stage
	ProcessedCount int
	FailedCount    int
	Errors         []format.RowError
	Rows           []format.RowRecord
}

// Exporter mirrors the import pipeline for the outbound direction: a single
// query fetch followed by a per-record transform, with the same
// error-isolation policy. One record's transform failure contributes one
// RowError and processing continues; output order matches query order.
type Exporter struct {
	// Query fetches all records to export, already filtered and ordered.
	Query func(ctx context.Context) ([]any, error)

	// Transform reshapes one record into a row for the format handler.
	// idx is the 1-based position within the query result.
	Transform func(record any, idx int) (format.RowRecord, error)

	// ErrorKind tags transform failures (default ErrKindTransform; exports
	// that decrypt in Transform use ErrKindDecrypt).
	ErrorKind string

	// Progress receives snapshots; nil disables reporting.
	Progress ProgressFunc
}

// Run executes the export on the calling goroutine. A query failure is the
// only unrecoverable outcome; it terminates in the error stage with no rows.
func (e *Exporter) Run(ctx context.Context) *ExportResult {
	result := &ExportResult{Stage: StageValidating}

	errKind := e.ErrorKind
	if errKind == "" {
		errKind = ErrKindTransform
	}

	records, err := e.Query(ctx)
	if err != nil {
		result.Stage = StageError
		result.Errors = append(result.Errors, format.RowError{
			Row:     0,
			Kind:    errKind,
			Message: fmt.Sprintf("query records: %v", err),
		})
		e.emit(StageError, 0, 0, err.Error())
		return result
	}

	total := len(records)
	result.Rows = make([]format.RowRecord, 0, total)

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			result.Stage = StageError
			result.Errors = append(result.Errors, format.RowError{
				Row: 0, Kind: errKind, Message: fmt.Sprintf("export interrupted: %v", err),
			})
			e.emit(StageError, i, total, err.Error())
			return result
		}

		row, err := e.Transform(record, i+1)
		if err != nil {
			result.Errors = append(result.Errors, format.RowError{
				Row:     i + 1,
				Kind:    errKind,
				Message: err.Error(),
			})
			result.FailedCount++
		} else {
			result.Rows = append(result.Rows, row)
			result.ProcessedCount++
		}

		if (i+1)%progressEvery == 0 || i == total-1 {
			e.emit(StageValidating, i+1, total, fmt.Sprintf("prepared %d of %d records", i+1, total))
		}
	}

	result.Stage = StageComplete
	result.Success = true
	e.emit(StageComplete, total, total, "export complete")
	return result
}

func (e *Exporter) emit(stage Stage, current, total int, message string) {
	if e.Progress == nil {
		return
	}
	pct := 0
	if total > 0 {
		pct = current * 100 / total
	} else if stage == StageComplete {
		pct = 100
	}
	e.Progress(Progress{
		Stage:      stage,
		Current:    current,
		Total:      total,
		Percentage: pct,
		Message:    message,
	})
}
