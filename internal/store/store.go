// Package store persists exam questions in PostgreSQL. Encrypted fields are
// stored as opaque text; the store never sees plaintext for protected columns.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Question is one exam question row. Stem, Answer, and Analysis hold
// ciphertext envelopes, not plaintext.
type Question struct {
	ID         uuid.UUID
	Stem       string
	Answer     string
	Analysis   string
	Subject    string
	ExamType   string
	Year       int
	Difficulty string
	Status     string
	Score      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Question status values.
const (
	StatusActive   = "active"
	StatusDraft    = "draft"
	StatusArchived = "archived"
)

// StatusAll is a Criteria.Status value selecting live and soft-deleted rows
// together. It is never stored in the status column.
const StatusAll = "all"

// Store wraps the connection pool with question-specific operations.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing pool. The caller owns the pool's
// lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const insertQuestionSQL = `
	INSERT INTO questions
		(id, stem, answer, analysis, subject, exam_type, year, difficulty, status, score, created_at, updated_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	RETURNING id`

// SaveBatch inserts one batch of questions inside a single transaction and
// returns the committed count and IDs. The batch either commits whole or
// rolls back whole; callers decide what a failed batch means for the rest of
// their input.
func (s *Store) SaveBatch(ctx context.Context, questions []*Question) (int, []string, error) {
	if len(questions) == 0 {
		return 0, nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, q := range questions {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		batch.Queue(insertQuestionSQL,
			q.ID, q.Stem, q.Answer, q.Analysis,
			q.Subject, q.ExamType, q.Year, q.Difficulty, q.Status, q.Score)
	}

	br := tx.SendBatch(ctx, batch)
	ids := make([]string, 0, len(questions))
	for range questions {
		var id uuid.UUID
		if err := br.QueryRow().Scan(&id); err != nil {
			br.Close()
			return 0, nil, fmt.Errorf("insert question: %w", err)
		}
		ids = append(ids, id.String())
	}
	if err := br.Close(); err != nil {
		return 0, nil, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit batch: %w", err)
	}
	return len(ids), ids, nil
}

// FindQuestions returns one page of questions matching the criteria plus the
// total match count across all pages. Results are ordered by creation time
// then ID so pagination is stable.
func (s *Store) FindQuestions(ctx context.Context, c Criteria) ([]*Question, int64, error) {
	where, args := c.buildWhere()

	var total int64
	countSQL := "SELECT count(*) FROM questions" + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	querySQL := `
		SELECT id, stem, answer, analysis, subject, exam_type, year, difficulty,
		       status, score, created_at, updated_at, deleted_at
		FROM questions` + where + `
		ORDER BY created_at, id` + c.buildLimit(len(args))
	args = append(args, c.limitArgs()...)

	rows, err := s.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		q := &Question{}
		if err := rows.Scan(
			&q.ID, &q.Stem, &q.Answer, &q.Analysis, &q.Subject, &q.ExamType,
			&q.Year, &q.Difficulty, &q.Status, &q.Score,
			&q.CreatedAt, &q.UpdatedAt, &q.DeletedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read questions: %w", err)
	}

	return questions, total, nil
}

// CountQuestions returns the number of live questions.
func (s *Store) CountQuestions(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM questions WHERE deleted_at IS NULL").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

// SoftDelete marks questions as deleted without removing rows.
func (s *Store) SoftDelete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE questions SET deleted_at = now(), updated_at = now() WHERE id = ANY($1) AND deleted_at IS NULL",
		ids)
	if err != nil {
		return 0, fmt.Errorf("soft delete questions: %w", err)
	}
	return tag.RowsAffected(), nil
}
