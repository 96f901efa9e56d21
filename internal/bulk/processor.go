// Package bulk implements the generic two-stage import pipeline and its
// export mirror. The pipeline is entity-agnostic: callers inject validate,
// transform, and save behavior, and the processor contributes ordering,
// batching, per-row error isolation, and progress reporting.
//
// Error policy: row- and batch-level failures are collected into the result's
// error list and processing continues. Nothing is thrown past the processor
// boundary; the returned Result always carries a complete accounting.
package bulk

import (
	"context"
	"fmt"

	"github.com/examcraft/qbank/internal/format"
)

// Stage identifies where a pipeline invocation currently is.
type Stage string

const (
	StageValidating Stage = "validating"
	StageSaving     Stage = "saving"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Error kinds attached to format.RowError values the processor produces.
const (
	ErrKindValidation = "validation"
	ErrKindTransform  = "transform"
	ErrKindPersist    = "persist"
	ErrKindDecrypt    = "decrypt"
)

// DefaultBatchSize is the number of transformed rows persisted per
// transaction when the caller does not configure one.
const DefaultBatchSize = 50

// progressEvery throttles per-row progress emission during validation.
const progressEvery = 10

// Progress is one snapshot of pipeline state, emitted through the caller's
// sink after every unit of work.
type Progress struct {
	Stage      Stage  `json:"stage"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// ProgressFunc receives progress snapshots. It must not block for long;
// emission happens inline on the pipeline goroutine.
type ProgressFunc func(Progress)

// Outcome is the per-row result of validation.
type Outcome struct {
	Valid  bool
	Errors []format.RowError
}

// Invalid builds a failed outcome with a single field error.
func Invalid(row int, field, message string) Outcome {
	return Outcome{Errors: []format.RowError{{
		Row: row, Field: field, Kind: ErrKindValidation, Message: message,
	}}}
}

// SaveResult reports what one batch persistence call committed.
type SaveResult struct {
	Count int
	IDs   []string
}

// Result is the final accounting for one pipeline invocation.
type Result struct {
	Success        bool              `json:"success"`
	Stage          Stage             `json:"stage"`
	ProcessedCount int               `json:"processedCount"`
	FailedCount    int               `json:"failedCount"`
	Errors         []format.RowError `json:"errors"`
	IDs            []string          `json:"ids,omitempty"`

	// Data holds the transformed rows when ValidateOnly short-circuits the
	// pipeline before persistence.
	Data []any `json:"-"`
}

// Pipeline drives format-agnostic rows through validate/transform and then
// batched persistence. One Pipeline value serves one invocation.
type Pipeline struct {
	// Validate judges a single row. rowNum is 1-based relative to the
	// original input, header rows included.
	Validate func(row format.RowRecord, rowNum int) Outcome

	// Transform shapes a valid row into its persistence form.
	Transform func(row format.RowRecord, rowNum int) (any, error)

	// Save persists one batch inside a single transactional boundary.
	Save func(ctx context.Context, batch []any) (SaveResult, error)

	// Progress receives snapshots; nil disables reporting.
	Progress ProgressFunc

	// BatchSize is rows per Save call (default DefaultBatchSize).
	BatchSize int

	// ValidateOnly stops after stage one and returns the valid/invalid split
	// without persisting. Used for dry-run previews.
	ValidateOnly bool

	// FirstRowNumber is the 1-based input row number of rows[0], so error
	// messages line up with what the user sees in their file (2 when the
	// file carried a header row).
	FirstRowNumber int
}

// Run executes the pipeline over rows, in input order, on the calling
// goroutine. The returned Result is never nil.
func (p *Pipeline) Run(ctx context.Context, rows []format.RowRecord) *Result {
	result := &Result{Stage: StageValidating}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	firstRow := p.FirstRowNumber
	if firstRow <= 0 {
		firstRow = 1
	}

	// Stage 1: validate + transform, preserving input order.
	type pending struct {
		value  any
		rowNum int
	}
	valid := make([]pending, 0, len(rows))

	total := len(rows)
	for i, row := range rows {
		rowNum := firstRow + i

		if err := ctx.Err(); err != nil {
			return p.fail(result, fmt.Errorf("validation interrupted: %w", err))
		}

		outcome := p.Validate(row, rowNum)
		if !outcome.Valid {
			result.Errors = append(result.Errors, outcome.Errors...)
			result.FailedCount++
		} else {
			value, err := p.Transform(row, rowNum)
			if err != nil {
				result.Errors = append(result.Errors, format.RowError{
					Row:     rowNum,
					Kind:    ErrKindTransform,
					Message: err.Error(),
				})
				result.FailedCount++
			} else {
				valid = append(valid, pending{value: value, rowNum: rowNum})
			}
		}

		if (i+1)%progressEvery == 0 || i == total-1 {
			p.emit(StageValidating, i+1, total, fmt.Sprintf("validated %d of %d rows", i+1, total))
		}
	}

	if p.ValidateOnly {
		result.Stage = StageComplete
		result.Success = true
		result.ProcessedCount = len(valid)
		result.Data = make([]any, len(valid))
		for i, v := range valid {
			result.Data[i] = v.value
		}
		p.emit(StageComplete, total, total, "validation complete")
		return result
	}

	// Stage 2: persist in fixed-size batches, each inside its own
	// transactional boundary. A failed batch converts into one error per
	// row and processing continues with the next batch; partial success is
	// the contract.
	result.Stage = StageSaving
	totalBatches := (len(valid) + batchSize - 1) / batchSize

	for b := 0; b < totalBatches; b++ {
		if err := ctx.Err(); err != nil {
			return p.fail(result, fmt.Errorf("persistence interrupted: %w", err))
		}

		start := b * batchSize
		end := start + batchSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]

		batch := make([]any, len(chunk))
		for i, v := range chunk {
			batch[i] = v.value
		}

		saved, err := p.saveBatch(ctx, batch)
		if err != nil {
			for _, v := range chunk {
				result.Errors = append(result.Errors, format.RowError{
					Row:     v.rowNum,
					Kind:    ErrKindPersist,
					Message: fmt.Sprintf("batch %d failed: %v", b+1, err),
				})
			}
			result.FailedCount += len(chunk)
		} else {
			result.ProcessedCount += saved.Count
			result.IDs = append(result.IDs, saved.IDs...)
		}

		p.emit(StageSaving, b+1, totalBatches, fmt.Sprintf("saved batch %d of %d", b+1, totalBatches))
	}

	result.Stage = StageComplete
	result.Success = true
	p.emit(StageComplete, totalBatches, totalBatches, "import complete")
	return result
}

// saveBatch invokes the caller's Save inside a panic guard so a misbehaving
// callback degrades into a batch failure instead of unwinding the pipeline.
func (p *Pipeline) saveBatch(ctx context.Context, batch []any) (result SaveResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save panicked: %v", r)
		}
	}()
	return p.Save(ctx, batch)
}

func (p *Pipeline) fail(result *Result, err error) *Result {
	result.Stage = StageError
	result.Errors = append(result.Errors, format.RowError{
		Row:     0,
		Kind:    ErrKindPersist,
		Message: err.Error(),
	})
	p.emit(StageError, 0, 0, err.Error())
	return result
}

func (p *Pipeline) emit(stage Stage, current, total int, message string) {
	if p.Progress == nil {
		return
	}
	pct := 0
	if total > 0 {
		pct = current * 100 / total
	} else if stage == StageComplete {
		pct = 100
	}
	p.Progress(Progress{
		Stage:      stage,
		Current:    current,
		Total:      total,
		Percentage: pct,
		Message:    message,
	})
}
