// Package qbank orchestrates bulk question import, export, and template
// generation. It joins the format handlers, the field codec, the bulk
// pipeline, the rate limiter, and the question store, and owns the
// permission gate in front of them.
package qbank

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/examcraft/qbank/internal/bulk"
	"github.com/examcraft/qbank/internal/crypto"
	"github.com/examcraft/qbank/internal/format"
	"github.com/examcraft/qbank/internal/logging"
	"github.com/examcraft/qbank/internal/ratelimit"
	"github.com/examcraft/qbank/internal/store"
)

// Caller is the pre-validated identity an operation runs as. Authentication
// happens at the edge; the core only consumes the result.
type Caller struct {
	ID      string
	Name    string
	CanBulk bool
}

// QuestionStore is the persistence surface the service consumes.
type QuestionStore interface {
	SaveBatch(ctx context.Context, questions []*store.Question) (int, []string, error)
	FindQuestions(ctx context.Context, c store.Criteria) ([]*store.Question, int64, error)
}

// RateLimiter gates the read-side operations.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, operation, callerID string) ratelimit.Decision
}

// RateLimitError carries the wait hint alongside the sentinel.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Options tunes the service. Zero values fall back to sensible defaults.
type Options struct {
	BatchSize   int
	MaxRows     int
	MaxFileSize int
	PageSize    int
	MaxRecords  int
}

// Service is the orchestration core. All fields are required except limiter,
// which may be nil to disable rate limiting.
type Service struct {
	store   QuestionStore
	codec   *crypto.Codec
	limiter RateLimiter
	opts    Options
}

// NewService wires the orchestration core.
func NewService(st QuestionStore, codec *crypto.Codec, limiter RateLimiter, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = bulk.DefaultBatchSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	return &Service{store: st, codec: codec, limiter: limiter, opts: opts}
}

// ImportOptions controls one import invocation.
type ImportOptions struct {
	// Format names the registered handler ("csv", "xlsx", "yaml").
	Format string

	// HasHeaders treats the first row of the file as column names.
	HasHeaders bool

	// ValidateOnly runs the validation stage and skips persistence.
	ValidateOnly bool

	// Progress receives pipeline snapshots; nil disables reporting.
	Progress bulk.ProgressFunc
}

// ImportResult is the outcome of one import invocation.
type ImportResult struct {
	Success        bool              `json:"success"`
	UploadID       string            `json:"uploadId"`
	ProcessedCount int               `json:"processedCount"`
	FailedCount    int               `json:"failedCount"`
	Errors         []format.RowError `json:"errors,omitempty"`
	IDs            []string          `json:"ids,omitempty"`
	Code           string            `json:"code"`
	Message        string            `json:"message,omitempty"`
}

// ImportQuestions parses the uploaded buffer, validates and encrypts every
// row, and persists the valid rows in batches. Row failures never abort the
// run; the result accounts for every input row.
func (s *Service) ImportQuestions(ctx context.Context, caller Caller, file []byte, opts ImportOptions) (result *ImportResult, err error) {
	start := time.Now()
	defer func() {
		processed, failed := 0, 0
		if result != nil {
			processed, failed = result.ProcessedCount, result.FailedCount
		}
		logging.Audit(ctx, "questions.import", caller.ID, processed, failed, time.Since(start), err)
	}()

	if !caller.CanBulk {
		return nil, ErrPermissionDenied
	}
	if s.opts.MaxFileSize > 0 && len(file) > s.opts.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	handler, ok := format.Get(opts.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}

	uploadID := uuid.New().String()

	parsed := handler.Parse(file, format.ParseOptions{
		HasHeaders:    opts.HasHeaders,
		MaxRows:       s.opts.MaxRows,
		SkipEmptyRows: true,
	})
	if len(parsed.Rows) == 0 && len(parsed.Errors) > 0 {
		return &ImportResult{
			UploadID:    uploadID,
			FailedCount: len(parsed.Errors),
			Errors:      parsed.Errors,
			Code:        CodeParseFailed,
			Message:     "the file could not be read",
		}, nil
	}

	firstRow := 1
	if opts.HasHeaders && !handler.ImpliesHeaders() {
		firstRow = 2
	}

	pipeline := &bulk.Pipeline{
		Validate: func(row format.RowRecord, rowNum int) bulk.Outcome {
			if errs := validateRow(row, rowNum, QuestionFieldSpecs); len(errs) > 0 {
				return bulk.Outcome{Errors: errs}
			}
			return bulk.Outcome{Valid: true}
		},
		Transform: func(row format.RowRecord, _ int) (any, error) {
			return s.buildQuestion(row)
		},
		Save: func(ctx context.Context, batch []any) (bulk.SaveResult, error) {
			questions := make([]*store.Question, len(batch))
			for i, v := range batch {
				questions[i] = v.(*store.Question)
			}
			count, ids, err := s.store.SaveBatch(ctx, questions)
			if err != nil {
				msg := store.MapError(err)
				return bulk.SaveResult{}, fmt.Errorf("%s (%s)", msg.Message, msg.Code)
			}
			return bulk.SaveResult{Count: count, IDs: ids}, nil
		},
		Progress:       opts.Progress,
		BatchSize:      s.opts.BatchSize,
		ValidateOnly:   opts.ValidateOnly,
		FirstRowNumber: firstRow,
	}

	run := pipeline.Run(ctx, parsed.Rows)

	// Rows the handler could not parse still count as failures, alongside
	// whatever the pipeline reports for the rows that did parse.
	rowErrors := append([]format.RowError{}, parsed.Errors...)
	rowErrors = append(rowErrors, run.Errors...)

	result = &ImportResult{
		Success:        run.Success,
		UploadID:       uploadID,
		ProcessedCount: run.ProcessedCount,
		FailedCount:    run.FailedCount + len(parsed.Errors),
		Errors:         rowErrors,
		IDs:            run.IDs,
		Code:           CodeOK,
	}
	if !run.Success {
		result.Code = CodeParseFailed
		result.Message = "import did not complete"
	}
	return result, nil
}

// buildQuestion shapes one validated row into its persistence form,
// encrypting the protected fields.
func (s *Service) buildQuestion(row format.RowRecord) (*store.Question, error) {
	q := &store.Question{
		Subject:  row.Value("subject").String(),
		ExamType: row.Value("exam_type").String(),
		Status:   strings.ToLower(row.Value("status").String()),
	}
	if q.Status == "" {
		q.Status = store.StatusDraft
	}
	q.Difficulty = strings.ToLower(row.Value("difficulty").String())

	if year, ok := format.ParseNumber(row.Value("year").String()); ok {
		q.Year = int(year)
	}
	if score, ok := format.ParseNumber(row.Value("score").String()); ok {
		q.Score = score
	}

	for _, spec := range QuestionFieldSpecs {
		if !spec.Encrypted {
			continue
		}
		plaintext := row.Value(spec.Name).String()
		blob, err := s.codec.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", spec.Name, err)
		}
		switch spec.Name {
		case "stem":
			q.Stem = blob
		case "answer":
			q.Answer = blob
		case "analysis":
			q.Analysis = blob
		}
	}

	return q, nil
}

// ExportData is the generated file, base64-encoded for JSON transport.
type ExportData struct {
	Buffer   string `json:"buffer"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// ExportResult is the outcome of one export invocation.
type ExportResult struct {
	Success        bool              `json:"success"`
	ProcessedCount int               `json:"processedCount"`
	FailedCount    int               `json:"failedCount"`
	Errors         []format.RowError `json:"errors,omitempty"`
	Data           *ExportData       `json:"data,omitempty"`
	Code           string            `json:"code"`
	Message        string            `json:"message,omitempty"`
}

// exportHeaders is the column order of exported files: the record ID first,
// then the import columns.
func exportHeaders() []string {
	return append([]string{"id"}, Headers(QuestionFieldSpecs)...)
}

// ExportQuestions fetches every page matching the criteria, decrypts the
// protected fields as records arrive, and serializes the survivors in the
// requested format. Records failing integrity checks are dropped and
// reported, never exported as ciphertext. Zero matches is a successful,
// empty export.
func (s *Service) ExportQuestions(ctx context.Context, caller Caller, criteria store.Criteria, formatName string) (result *ExportResult, err error) {
	start := time.Now()
	defer func() {
		processed, failed := 0, 0
		if result != nil {
			processed, failed = result.ProcessedCount, result.FailedCount
		}
		logging.Audit(ctx, "questions.export", caller.ID, processed, failed, time.Since(start), err)
	}()

	if !caller.CanBulk {
		return nil, ErrPermissionDenied
	}
	handler, ok := format.Get(formatName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, formatName)
	}
	if s.limiter != nil {
		if d := s.limiter.CheckAndIncrement(ctx, "export", caller.ID); !d.Allowed {
			return nil, &RateLimitError{RetryAfter: d.RetryAfter}
		}
	}

	exporter := &bulk.Exporter{
		Query: func(ctx context.Context) ([]any, error) {
			return s.fetchAllPages(ctx, criteria)
		},
		Transform: func(record any, _ int) (format.RowRecord, error) {
			return s.decryptToRow(ctx, record.(*store.Question))
		},
		ErrorKind: bulk.ErrKindDecrypt,
	}

	run := exporter.Run(ctx)
	if !run.Success {
		return &ExportResult{
			Errors:  run.Errors,
			Code:    CodeExportFailed,
			Message: "export did not complete",
		}, nil
	}

	exported, err := handler.Export(run.Rows, exportHeaders(), format.ExportOptions{
		IncludeHeaders: true,
		Styled:         true,
		BaseName:       "questions",
	})
	if err != nil {
		return nil, fmt.Errorf("serialize export: %w", err)
	}

	return &ExportResult{
		Success:        true,
		ProcessedCount: run.ProcessedCount,
		FailedCount:    run.FailedCount,
		Errors:         run.Errors,
		Code:           CodeOK,
		Data: &ExportData{
			Buffer:   base64.StdEncoding.EncodeToString(exported.Buffer),
			Filename: exported.Filename,
			MimeType: exported.MimeType,
			Size:     exported.Size,
		},
	}, nil
}

// fetchAllPages walks the query planner page by page until the criteria are
// exhausted or MaxRecords is reached.
func (s *Service) fetchAllPages(ctx context.Context, criteria store.Criteria) ([]any, error) {
	criteria.PageSize = s.opts.PageSize
	if criteria.Page <= 0 {
		criteria.Page = 1
	}

	var records []any
	for {
		questions, total, err := s.store.FindQuestions(ctx, criteria)
		if err != nil {
			return nil, err
		}
		for _, q := range questions {
			records = append(records, q)
			if s.opts.MaxRecords > 0 && len(records) >= s.opts.MaxRecords {
				return records, nil
			}
		}
		if len(questions) < criteria.PageSize || int64(len(records)) >= total {
			return records, nil
		}
		criteria.Page++
	}
}

// decryptToRow turns one stored question into an export row, decrypting the
// protected fields. Any integrity failure fails the whole record.
func (s *Service) decryptToRow(ctx context.Context, q *store.Question) (format.RowRecord, error) {
	row := format.NewRow(len(QuestionFieldSpecs) + 1)
	row.Set("id", format.TextCell(q.ID.String()))

	for _, spec := range QuestionFieldSpecs {
		var value format.Cell
		switch spec.Name {
		case "stem", "answer", "analysis":
			blob := q.Stem
			if spec.Name == "answer" {
				blob = q.Answer
			} else if spec.Name == "analysis" {
				blob = q.Analysis
			}
			plaintext, err := s.codec.Decrypt(blob)
			if err != nil {
				logging.FromContext(ctx).Warn("dropping record from export",
					"question_id", q.ID.String(), "field", spec.Name, "error", err)
				return format.RowRecord{}, fmt.Errorf("decrypt %s: %w", spec.Name, err)
			}
			value = format.TextCell(plaintext)
		case "subject":
			value = format.TextCell(q.Subject)
		case "exam_type":
			value = format.TextCell(q.ExamType)
		case "year":
			value = format.NumberCell(float64(q.Year))
		case "difficulty":
			value = format.TextCell(q.Difficulty)
		case "status":
			value = format.TextCell(q.Status)
		case "score":
			value = format.NumberCell(q.Score)
		}
		row.Set(spec.Name, value)
	}

	return row, nil
}

// GenerateTemplate produces a downloadable starter file with the question
// columns, their descriptions, and a couple of example rows.
func (s *Service) GenerateTemplate(ctx context.Context, caller Caller, formatName string) (data *ExportData, err error) {
	start := time.Now()
	defer func() {
		logging.Audit(ctx, "questions.template", caller.ID, 0, 0, time.Since(start), err)
	}()

	if !caller.CanBulk {
		return nil, ErrPermissionDenied
	}
	handler, ok := format.Get(formatName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, formatName)
	}
	if s.limiter != nil {
		if d := s.limiter.CheckAndIncrement(ctx, "template", caller.ID); !d.Allowed {
			return nil, &RateLimitError{RetryAfter: d.RetryAfter}
		}
	}

	tmpl, err := handler.GenerateTemplate(Headers(QuestionFieldSpecs), format.TemplateOptions{
		IncludeSamples: true,
		SampleCount:    2,
		Descriptions:   Descriptions(QuestionFieldSpecs),
	})
	if err != nil {
		return nil, fmt.Errorf("generate template: %w", err)
	}

	return &ExportData{
		Buffer:   base64.StdEncoding.EncodeToString(tmpl.Buffer),
		Filename: tmpl.Filename,
		MimeType: tmpl.MimeType,
		Size:     tmpl.Size,
	}, nil
}
