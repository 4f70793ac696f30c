package submission

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
)

func TestSQLiteStore_Insert_OneOpenPerStudentAndQuiz(t *testing.T) {
	s := makeSQLiteStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := openSubmission("a", 42, 7, start)
	require.NoError(t, s.Insert(ctx, first))

	err := s.Insert(ctx, openSubmission("b", 42, 7, start))
	require.True(t, errors.Is(err, errors.CodeAlreadyExists), "got %v", err)

	require.NoError(t, s.Insert(ctx, openSubmission("c", 43, 7, start)), "another student is independent")
	require.NoError(t, s.Insert(ctx, openSubmission("d", 42, 10, start)), "another quiz is independent")

	first.Submitted = true
	first.Score = decimal.NewFromInt(50)
	first.Answers = []domain.Answer{{AnswerID: 11, QuestionID: 1, QuizID: 7, Text: "4", Correct: true}}
	require.NoError(t, s.Finalize(ctx, first, start.Add(time.Minute)))

	require.NoError(t, s.Insert(ctx, openSubmission("b", 42, 7, start.Add(time.Hour))), "a closed submission frees the slot")
}

func TestSQLiteStore_Finalize(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		at      time.Time
		wantErr error
	}{
		"before the end time": {at: start.Add(10 * time.Minute)},
		"at the end time":     {at: start.Add(30 * time.Minute)},
		"after the end time":  {at: start.Add(30*time.Minute + time.Microsecond), wantErr: ErrNotOpen},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := makeSQLiteStore(t)
			ctx := context.Background()

			sub := openSubmission("a", 42, 7, start)
			require.NoError(t, s.Insert(ctx, sub))

			closed := *sub
			closed.Submitted = true
			closed.SubmitTime = &tt.at
			closed.Score = decimal.RequireFromString("33.33")
			closed.Answers = []domain.Answer{
				{AnswerID: 11, QuestionID: 1, QuizID: 7, Text: "4", Correct: true},
				{AnswerID: 23, QuestionID: 2, QuizID: 7, Text: "green"},
			}

			err := s.Finalize(ctx, &closed, tt.at)
			require.ErrorIs(t, err, tt.wantErr)

			got, err := s.FindByID(ctx, "a")
			require.NoError(t, err)

			if tt.wantErr != nil {
				require.False(t, got.Submitted)
				require.Empty(t, got.Answers, "a refused close writes nothing")
				return
			}

			require.True(t, got.Submitted)
			require.Equal(t, tt.at, *got.SubmitTime)
			require.Equal(t, "33.33", got.Score.String())
			require.Equal(t, closed.Answers, got.Answers)

			require.ErrorIs(t, s.Finalize(ctx, &closed, tt.at), ErrNotOpen, "closing twice is refused")
		})
	}
}

func TestSQLiteStore_DeleteByID(t *testing.T) {
	s := makeSQLiteStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sub := openSubmission("a", 42, 7, start)
	require.NoError(t, s.Insert(ctx, sub))
	sub.Submitted = true
	sub.Answers = []domain.Answer{{AnswerID: 11, QuestionID: 1, QuizID: 7, Text: "4", Correct: true}}
	require.NoError(t, s.Finalize(ctx, sub, start))

	require.NoError(t, s.DeleteByID(ctx, "a"))

	_, err := s.FindByID(ctx, "a")
	require.True(t, errors.Is(err, errors.CodeNotFound))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submission_answers`).Scan(&n))
	require.Zero(t, n, "answers are removed with the submission")

	require.True(t, errors.Is(s.DeleteByID(ctx, "a"), errors.CodeNotFound))
}

func TestFold(t *testing.T) {
	id := func(v int64) *int64 { return &v }

	got := fold([]row{
		{SubmissionID: "b", QuizID: 7, AnswerID: id(11), QuestionID: id(1), AnswerQuiz: id(7)},
		{SubmissionID: "a", QuizID: 7},
		{SubmissionID: "b", QuizID: 7, AnswerID: id(21), QuestionID: id(2), AnswerQuiz: id(7)},
	})

	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].SubmissionID)
	require.Equal(t, []domain.Answer{
		{AnswerID: 11, QuestionID: 1, QuizID: 7},
		{AnswerID: 21, QuestionID: 2, QuizID: 7},
	}, got[0].Answers)
	require.Equal(t, "a", got[1].SubmissionID)
	require.Nil(t, got[1].Answers)
}

func openSubmission(id string, studentID, quizID int64, start time.Time) *domain.Submission {
	return &domain.Submission{
		SubmissionID: id,
		StudentID:    studentID,
		QuizID:       quizID,
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		Score:        decimal.Zero,
	}
}

func makeSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "submissions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}
