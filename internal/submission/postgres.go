package submission

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
)

const codeUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
	submission_id UUID PRIMARY KEY,
	student_id    BIGINT NOT NULL,
	quiz_id       BIGINT NOT NULL,
	start_time    TIMESTAMPTZ NOT NULL,
	end_time      TIMESTAMPTZ NOT NULL,
	submitted     BOOLEAN NOT NULL DEFAULT FALSE,
	submit_time   TIMESTAMPTZ,
	score         NUMERIC(6, 2) NOT NULL DEFAULT 0
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS submissions_open_student_quiz ON submissions (student_id, quiz_id) WHERE NOT submitted;`,
	`CREATE INDEX IF NOT EXISTS submissions_quiz ON submissions (quiz_id);`,
	`CREATE INDEX IF NOT EXISTS submissions_student ON submissions (student_id);`,
	`CREATE TABLE IF NOT EXISTS submission_answers (
	submission_id UUID NOT NULL REFERENCES submissions (submission_id),
	answer_id     BIGINT NOT NULL,
	question_id   BIGINT NOT NULL,
	quiz_id       BIGINT NOT NULL,
	answer_text   TEXT NOT NULL,
	correct       BOOLEAN NOT NULL,
	PRIMARY KEY (submission_id, answer_id)
);`,
}

const selectSubmissions = `
SELECT s.submission_id::text, s.student_id, s.quiz_id, s.start_time, s.end_time, s.submitted, s.submit_time, s.score,
       a.answer_id, a.question_id, a.quiz_id, a.answer_text, a.correct
FROM submissions s
LEFT JOIN submission_answers a ON a.submission_id = s.submission_id`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the submission tables and indexes when they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate submissions: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, sub *domain.Submission) error {
	id, err := uuid.Parse(sub.SubmissionID)
	if err != nil {
		return fmt.Errorf("parse submission ID: %w", err)
	}

	const stmt = `
INSERT INTO submissions (submission_id, student_id, quiz_id, start_time, end_time, submitted, score)
VALUES ($1, $2, $3, $4, $5, FALSE, $6);`

	_, err = s.db.Exec(ctx, stmt, id, sub.StudentID, sub.QuizID, sub.StartTime, sub.EndTime, sub.Score)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("open submission already exists: student=%d quiz=%d", sub.StudentID, sub.QuizID),
			errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	return nil
}

func (s *PostgresStore) Finalize(ctx context.Context, sub *domain.Submission, at time.Time) (err error) {
	id, err := uuid.Parse(sub.SubmissionID)
	if err != nil {
		return fmt.Errorf("parse submission ID: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const stmt = `
UPDATE submissions SET submitted = TRUE, submit_time = $2, score = $3
WHERE submission_id = $1 AND NOT submitted AND end_time >= $2;`

	tag, err := tx.Exec(ctx, stmt, id, at, sub.Score)
	if err != nil {
		return fmt.Errorf("close submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOpen
	}

	rows := make([][]any, 0, len(sub.Answers))
	for _, a := range sub.Answers {
		rows = append(rows, []any{id, a.AnswerID, a.QuestionID, a.QuizID, a.Text, a.Correct})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"submission_answers"},
		[]string{"submission_id", "answer_id", "question_id", "quiz_id", "answer_text", "correct"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*domain.Submission, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound(id)
	}

	subs, err := s.query(ctx, selectSubmissions+` WHERE s.submission_id = $1 ORDER BY a.answer_id;`, uid)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, notFound(id)
	}

	return &subs[0], nil
}

func (s *PostgresStore) FindOpenByStudentAndQuiz(ctx context.Context, studentID, quizID int64) (*domain.Submission, error) {
	subs, err := s.query(ctx, selectSubmissions+` WHERE s.student_id = $1 AND s.quiz_id = $2 AND NOT s.submitted;`, studentID, quizID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("open submission not found: student=%d quiz=%d", studentID, quizID))
	}

	return &subs[0], nil
}

func (s *PostgresStore) FindLatestByStudentAndQuiz(ctx context.Context, studentID, quizID int64) (*domain.Submission, error) {
	const stmt = selectSubmissions + `
WHERE s.submission_id = (
	SELECT submission_id FROM submissions WHERE student_id = $1 AND quiz_id = $2
	ORDER BY start_time DESC, submission_id DESC LIMIT 1
)
ORDER BY a.answer_id;`

	subs, err := s.query(ctx, stmt, studentID, quizID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("submission not found: student=%d quiz=%d", studentID, quizID))
	}

	return &subs[0], nil
}

func (s *PostgresStore) FindByQuiz(ctx context.Context, quizID int64) ([]domain.Submission, error) {
	return s.query(ctx, selectSubmissions+` WHERE s.quiz_id = $1 ORDER BY s.start_time, s.submission_id, a.answer_id;`, quizID)
}

func (s *PostgresStore) FindByStudent(ctx context.Context, studentID int64) ([]domain.Submission, error) {
	return s.query(ctx, selectSubmissions+` WHERE s.student_id = $1 ORDER BY s.start_time, s.submission_id, a.answer_id;`, studentID)
}

// DeleteByID removes the recorded answers first, then the submission row, in one transaction.
func (s *PostgresStore) DeleteByID(ctx context.Context, id string) (err error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return notFound(id)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM submission_answers WHERE submission_id = $1;`, uid); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM submissions WHERE submission_id = $1;`, uid)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) query(ctx context.Context, stmt string, args ...any) ([]domain.Submission, error) {
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}

	collected, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var sr row
		err := r.Scan(
			&sr.SubmissionID, &sr.StudentID, &sr.QuizID, &sr.StartTime, &sr.EndTime, &sr.Submitted, &sr.SubmitTime, &sr.Score,
			&sr.AnswerID, &sr.QuestionID, &sr.AnswerQuiz, &sr.AnswerText, &sr.Correct,
		)
		return sr, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}

	return fold(collected), nil
}

func notFound(id string) *errors.Error {
	return errors.New(errors.CodeNotFound, errors.WithMessagef("submission not found: id=%s", id))
}
