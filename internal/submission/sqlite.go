package submission

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
)

// Times are stored as unix microseconds so deadline comparisons stay numeric.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		submission_id  TEXT PRIMARY KEY,
		student_id     INTEGER NOT NULL,
		quiz_id        INTEGER NOT NULL,
		start_time_us  INTEGER NOT NULL,
		end_time_us    INTEGER NOT NULL,
		submitted      INTEGER NOT NULL DEFAULT 0,
		submit_time_us INTEGER,
		score          TEXT NOT NULL DEFAULT '0'
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS submissions_open_student_quiz ON submissions(student_id, quiz_id) WHERE submitted = 0;`,
	`CREATE INDEX IF NOT EXISTS submissions_quiz ON submissions(quiz_id);`,
	`CREATE INDEX IF NOT EXISTS submissions_student ON submissions(student_id);`,
	`CREATE TABLE IF NOT EXISTS submission_answers (
		submission_id TEXT NOT NULL,
		answer_id     INTEGER NOT NULL,
		question_id   INTEGER NOT NULL,
		quiz_id       INTEGER NOT NULL,
		answer_text   TEXT NOT NULL,
		correct       INTEGER NOT NULL,
		PRIMARY KEY (submission_id, answer_id)
	);`,
}

const sqliteSelect = `
SELECT s.submission_id, s.student_id, s.quiz_id, s.start_time_us, s.end_time_us, s.submitted, s.submit_time_us, s.score,
       a.answer_id, a.question_id, a.quiz_id, a.answer_text, a.correct
FROM submissions s
LEFT JOIN submission_answers a ON a.submission_id = s.submission_id`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "submissions.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, sub *domain.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (submission_id, student_id, quiz_id, start_time_us, end_time_us, submitted, score)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		sub.SubmissionID, sub.StudentID, sub.QuizID, sub.StartTime.UnixMicro(), sub.EndTime.UnixMicro(), sub.Score.String(),
	)

	var sqErr sqlite3.Error
	if stderrors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("open submission already exists: student=%d quiz=%d", sub.StudentID, sub.QuizID),
			errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	return nil
}

// Finalize runs as a single transaction: the conditional update decides whether the submission can
// still be closed, and the answers are only written when it could.
func (s *SQLiteStore) Finalize(ctx context.Context, sub *domain.Submission, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET submitted = 1, submit_time_us = ?, score = ?
		 WHERE submission_id = ? AND submitted = 0 AND end_time_us >= ?`,
		at.UnixMicro(), sub.Score.String(), sub.SubmissionID, at.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("close submission: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotOpen
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO submission_answers (submission_id, answer_id, question_id, quiz_id, answer_text, correct)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range sub.Answers {
		if _, err := stmt.ExecContext(ctx, sub.SubmissionID, a.AnswerID, a.QuestionID, a.QuizID, a.Text, a.Correct); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*domain.Submission, error) {
	subs, err := s.query(ctx, sqliteSelect+` WHERE s.submission_id = ? ORDER BY a.answer_id`, id)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, notFound(id)
	}

	return &subs[0], nil
}

func (s *SQLiteStore) FindOpenByStudentAndQuiz(ctx context.Context, studentID, quizID int64) (*domain.Submission, error) {
	subs, err := s.query(ctx, sqliteSelect+` WHERE s.student_id = ? AND s.quiz_id = ? AND s.submitted = 0`, studentID, quizID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("open submission not found: student=%d quiz=%d", studentID, quizID))
	}

	return &subs[0], nil
}

func (s *SQLiteStore) FindLatestByStudentAndQuiz(ctx context.Context, studentID, quizID int64) (*domain.Submission, error) {
	subs, err := s.query(ctx, sqliteSelect+`
		 WHERE s.submission_id = (
			SELECT submission_id FROM submissions WHERE student_id = ? AND quiz_id = ?
			ORDER BY start_time_us DESC, submission_id DESC LIMIT 1
		 )
		 ORDER BY a.answer_id`, studentID, quizID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("submission not found: student=%d quiz=%d", studentID, quizID))
	}

	return &subs[0], nil
}

func (s *SQLiteStore) FindByQuiz(ctx context.Context, quizID int64) ([]domain.Submission, error) {
	return s.query(ctx, sqliteSelect+` WHERE s.quiz_id = ? ORDER BY s.start_time_us, s.submission_id, a.answer_id`, quizID)
}

func (s *SQLiteStore) FindByStudent(ctx context.Context, studentID int64) ([]domain.Submission, error) {
	return s.query(ctx, sqliteSelect+` WHERE s.student_id = ? ORDER BY s.start_time_us, s.submission_id, a.answer_id`, studentID)
}

// DeleteByID removes the recorded answers first, then the submission row, in one transaction.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM submission_answers WHERE submission_id = ?`, id); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE submission_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}

	return tx.Commit()
}

func (s *SQLiteStore) query(ctx context.Context, stmt string, args ...any) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var collected []row
	for rows.Next() {
		var (
			r              row
			startUS, endUS int64
			submitUS       *int64
		)
		if err := rows.Scan(
			&r.SubmissionID, &r.StudentID, &r.QuizID, &startUS, &endUS, &r.Submitted, &submitUS, &r.Score,
			&r.AnswerID, &r.QuestionID, &r.AnswerQuiz, &r.AnswerText, &r.Correct,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}

		r.StartTime = time.UnixMicro(startUS).UTC()
		r.EndTime = time.UnixMicro(endUS).UTC()
		if submitUS != nil {
			t := time.UnixMicro(*submitUS).UTC()
			r.SubmitTime = &t
		}

		collected = append(collected, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}

	return fold(collected), nil
}
