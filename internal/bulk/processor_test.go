package bulk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/examcraft/qbank/internal/format"
)

func makeRows(n int) []format.RowRecord {
	rows := make([]format.RowRecord, n)
	for i := range rows {
		row := format.NewRow(1)
		row.Set("id", format.TextCell(strconv.Itoa(i+1)))
		rows[i] = row
	}
	return rows
}

func acceptAll(format.RowRecord, int) Outcome              { return Outcome{Valid: true} }
func passThrough(row format.RowRecord, _ int) (any, error) { return row.Value("id").String(), nil }

func saveAll(_ context.Context, batch []any) (SaveResult, error) {
	ids := make([]string, len(batch))
	for i, v := range batch {
		ids[i] = v.(string)
	}
	return SaveResult{Count: len(batch), IDs: ids}, nil
}

func TestPipelineAllRowsSucceed(t *testing.T) {
	p := &Pipeline{
		Validate:  acceptAll,
		Transform: passThrough,
		Save:      saveAll,
	}

	res := p.Run(context.Background(), makeRows(5))

	if !res.Success || res.Stage != StageComplete {
		t.Fatalf("Success = %v, Stage = %v", res.Success, res.Stage)
	}
	if res.ProcessedCount != 5 || res.FailedCount != 0 {
		t.Errorf("Processed/Failed = %d/%d, want 5/0", res.ProcessedCount, res.FailedCount)
	}
	if len(res.IDs) != 5 || res.IDs[0] != "1" || res.IDs[4] != "5" {
		t.Errorf("IDs = %v, want input order preserved", res.IDs)
	}
}

func TestPipelineInvalidRowIsolated(t *testing.T) {
	p := &Pipeline{
		Validate: func(row format.RowRecord, rowNum int) Outcome {
			if row.Value("id").String() == "3" {
				return Invalid(rowNum, "id", "forbidden value")
			}
			return Outcome{Valid: true}
		},
		Transform: passThrough,
		Save:      saveAll,
	}

	res := p.Run(context.Background(), makeRows(5))

	if !res.Success {
		t.Fatal("Success = false, want partial success")
	}
	if res.ProcessedCount != 4 || res.FailedCount != 1 {
		t.Fatalf("Processed/Failed = %d/%d, want 4/1", res.ProcessedCount, res.FailedCount)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want one", res.Errors)
	}
	e := res.Errors[0]
	if e.Row != 3 || e.Field != "id" || e.Kind != ErrKindValidation {
		t.Errorf("error = %+v, want row 3 field id validation", e)
	}
}

func TestPipelineTransformFailureIsolated(t *testing.T) {
	p := &Pipeline{
		Validate: acceptAll,
		Transform: func(row format.RowRecord, rowNum int) (any, error) {
			if row.Value("id").String() == "2" {
				return nil, errors.New("cannot reshape")
			}
			return row.Value("id").String(), nil
		},
		Save: saveAll,
	}

	res := p.Run(context.Background(), makeRows(3))

	if res.ProcessedCount != 2 || res.FailedCount != 1 {
		t.Fatalf("Processed/Failed = %d/%d, want 2/1", res.ProcessedCount, res.FailedCount)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 2 || res.Errors[0].Kind != ErrKindTransform {
		t.Errorf("Errors = %v, want one row-2 transform error", res.Errors)
	}
}

func TestPipelineFailedBatchContinues(t *testing.T) {
	calls := 0
	p := &Pipeline{
		Validate:  acceptAll,
		Transform: passThrough,
		BatchSize: 2,
		Save: func(ctx context.Context, batch []any) (SaveResult, error) {
			calls++
			if calls == 2 {
				return SaveResult{}, errors.New("deadlock detected")
			}
			return saveAll(ctx, batch)
		},
	}

	// 5 rows, batch size 2: batches are {1,2}, {3,4}, {5}. Batch 2 fails.
	res := p.Run(context.Background(), makeRows(5))

	if !res.Success || res.Stage != StageComplete {
		t.Fatalf("Success = %v, Stage = %v, want partial success", res.Success, res.Stage)
	}
	if res.ProcessedCount != 3 || res.FailedCount != 2 {
		t.Fatalf("Processed/Failed = %d/%d, want 3/2", res.ProcessedCount, res.FailedCount)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("Errors = %v, want one per row of the failed batch", res.Errors)
	}
	for i, wantRow := range []int{3, 4} {
		e := res.Errors[i]
		if e.Row != wantRow || e.Kind != ErrKindPersist {
			t.Errorf("error %d = %+v, want row %d persist", i, e, wantRow)
		}
	}
	if len(res.IDs) != 3 || res.IDs[2] != "5" {
		t.Errorf("IDs = %v, want ids from batches 1 and 3", res.IDs)
	}
}

func TestPipelineSavePanicBecomesBatchFailure(t *testing.T) {
	p := &Pipeline{
		Validate:  acceptAll,
		Transform: passThrough,
		BatchSize: 10,
		Save: func(context.Context, []any) (SaveResult, error) {
			panic("nil pointer somewhere")
		},
	}

	res := p.Run(context.Background(), makeRows(3))

	if res.Stage != StageComplete {
		t.Fatalf("Stage = %v, want complete", res.Stage)
	}
	if res.ProcessedCount != 0 || res.FailedCount != 3 {
		t.Fatalf("Processed/Failed = %d/%d, want 0/3", res.ProcessedCount, res.FailedCount)
	}
}

func TestPipelineValidateOnly(t *testing.T) {
	saved := false
	p := &Pipeline{
		Validate: func(row format.RowRecord, rowNum int) Outcome {
			if row.Value("id").String() == "2" {
				return Invalid(rowNum, "id", "bad")
			}
			return Outcome{Valid: true}
		},
		Transform: passThrough,
		Save: func(context.Context, []any) (SaveResult, error) {
			saved = true
			return SaveResult{}, nil
		},
		ValidateOnly: true,
	}

	res := p.Run(context.Background(), makeRows(3))

	if saved {
		t.Fatal("Save called in validate-only mode")
	}
	if !res.Success || res.ProcessedCount != 2 || res.FailedCount != 1 {
		t.Fatalf("result = %+v, want 2 valid, 1 failed", res)
	}
	if len(res.Data) != 2 {
		t.Fatalf("len(Data) = %d, want 2 transformed values", len(res.Data))
	}
}

func TestPipelineFirstRowNumberOffset(t *testing.T) {
	p := &Pipeline{
		Validate: func(row format.RowRecord, rowNum int) Outcome {
			return Invalid(rowNum, "id", "always bad")
		},
		Transform:      passThrough,
		Save:           saveAll,
		FirstRowNumber: 2, // header row occupied row 1 in the source file
	}

	res := p.Run(context.Background(), makeRows(2))

	if len(res.Errors) != 2 || res.Errors[0].Row != 2 || res.Errors[1].Row != 3 {
		t.Errorf("Errors = %v, want rows 2 and 3", res.Errors)
	}
}

func TestPipelineContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Pipeline{
		Validate:  acceptAll,
		Transform: passThrough,
		Save:      saveAll,
	}

	res := p.Run(ctx, makeRows(3))

	if res.Success || res.Stage != StageError {
		t.Fatalf("Success = %v, Stage = %v, want error stage", res.Success, res.Stage)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 0 {
		t.Fatalf("Errors = %v, want one row-0 error", res.Errors)
	}
}

func TestPipelineProgressSequence(t *testing.T) {
	var snapshots []Progress
	p := &Pipeline{
		Validate:  acceptAll,
		Transform: passThrough,
		Save:      saveAll,
		BatchSize: 10,
		Progress:  func(pr Progress) { snapshots = append(snapshots, pr) },
	}

	p.Run(context.Background(), makeRows(25))

	if len(snapshots) == 0 {
		t.Fatal("no progress emitted")
	}

	// Validation snapshots are throttled to every 10th row plus the last.
	var validating []Progress
	for _, s := range snapshots {
		if s.Stage == StageValidating {
			validating = append(validating, s)
		}
	}
	if len(validating) != 3 {
		t.Errorf("validating snapshots = %d, want 3 (rows 10, 20, 25)", len(validating))
	}

	last := snapshots[len(snapshots)-1]
	if last.Stage != StageComplete || last.Percentage != 100 {
		t.Errorf("last snapshot = %+v, want complete at 100%%", last)
	}

	for i := 1; i < len(snapshots); i++ {
		prev, cur := snapshots[i-1], snapshots[i]
		if prev.Stage == cur.Stage && cur.Current < prev.Current {
			t.Errorf("progress went backwards: %+v -> %+v", prev, cur)
		}
	}
}

func TestExporterBasic(t *testing.T) {
	e := &Exporter{
		Query: func(context.Context) ([]any, error) {
			return []any{"a", "b", "c"}, nil
		},
		Transform: func(record any, idx int) (format.RowRecord, error) {
			row := format.NewRow(1)
			row.Set("value", format.TextCell(record.(string)))
			return row, nil
		},
	}

	res := e.Run(context.Background())

	if !res.Success || res.Stage != StageComplete {
		t.Fatalf("Success = %v, Stage = %v", res.Success, res.Stage)
	}
	if res.ProcessedCount != 3 || len(res.Rows) != 3 {
		t.Fatalf("Processed = %d, rows = %d, want 3/3", res.ProcessedCount, len(res.Rows))
	}
	if got := res.Rows[1].Value("value").String(); got != "b" {
		t.Errorf("row order: rows[1] = %q, want b", got)
	}
}

func TestExporterBadRecordIsolated(t *testing.T) {
	e := &Exporter{
		Query: func(context.Context) ([]any, error) {
			return []any{"a", "bad", "c"}, nil
		},
		Transform: func(record any, idx int) (format.RowRecord, error) {
			if record == "bad" {
				return format.RowRecord{}, fmt.Errorf("integrity check failed")
			}
			row := format.NewRow(1)
			row.Set("value", format.TextCell(record.(string)))
			return row, nil
		},
		ErrorKind: ErrKindDecrypt,
	}

	res := e.Run(context.Background())

	if !res.Success {
		t.Fatal("Success = false, want partial success")
	}
	if res.ProcessedCount != 2 || res.FailedCount != 1 {
		t.Fatalf("Processed/Failed = %d/%d, want 2/1", res.ProcessedCount, res.FailedCount)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 2 || res.Errors[0].Kind != ErrKindDecrypt {
		t.Fatalf("Errors = %v, want one row-2 decrypt error", res.Errors)
	}
}

func TestExporterQueryFailure(t *testing.T) {
	e := &Exporter{
		Query: func(context.Context) ([]any, error) {
			return nil, errors.New("connection reset")
		},
		Transform: func(any, int) (format.RowRecord, error) {
			return format.RowRecord{}, nil
		},
	}

	res := e.Run(context.Background())

	if res.Success || res.Stage != StageError {
		t.Fatalf("Success = %v, Stage = %v, want error stage", res.Success, res.Stage)
	}
	if len(res.Rows) != 0 {
		t.Errorf("rows = %d, want 0", len(res.Rows))
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 0 {
		t.Errorf("Errors = %v, want one row-0 error", res.Errors)
	}
}

func TestExporterEmptyQueryIsSuccess(t *testing.T) {
	e := &Exporter{
		Query: func(context.Context) ([]any, error) { return nil, nil },
		Transform: func(any, int) (format.RowRecord, error) {
			return format.RowRecord{}, nil
		},
	}

	res := e.Run(context.Background())

	if !res.Success || res.Stage != StageComplete {
		t.Fatalf("Success = %v, Stage = %v, want complete", res.Success, res.Stage)
	}
	if res.ProcessedCount != 0 || len(res.Errors) != 0 {
		t.Errorf("empty export: processed = %d, errors = %v", res.ProcessedCount, res.Errors)
	}
}
