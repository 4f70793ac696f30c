package submission

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/emstudy/internal/domain"
)

// ErrNotOpen is returned by Store.Finalize when the submission is no longer open, or its deadline
// passed, at the time of the write.
var ErrNotOpen = stderrors.New("submission is not open")

// Store persists submissions.
//
// Implementations must enforce at most one open submission per (student, quiz) and report a
// violation as an errors.CodeAlreadyExists error from Insert.
type Store interface {
	// Insert saves a new open submission.
	Insert(ctx context.Context, s *domain.Submission) error
	// Finalize persists the answers and score of s and marks it submitted, only if the stored
	// submission is still open and at is not after its end time. Otherwise it returns ErrNotOpen
	// and writes nothing.
	Finalize(ctx context.Context, s *domain.Submission, at time.Time) error
	FindByID(ctx context.Context, id string) (*domain.Submission, error)
	FindOpenByStudentAndQuiz(ctx context.Context, studentID, quizID int64) (*domain.Submission, error)
	// FindLatestByStudentAndQuiz returns the most recently started submission in any state.
	FindLatestByStudentAndQuiz(ctx context.Context, studentID, quizID int64) (*domain.Submission, error)
	FindByQuiz(ctx context.Context, quizID int64) ([]domain.Submission, error)
	FindByStudent(ctx context.Context, studentID int64) ([]domain.Submission, error)
	// DeleteByID removes the submission and its recorded answers.
	DeleteByID(ctx context.Context, id string) error
}

// row is one line of a submission joined with one of its answers. Answer columns are nil for
// submissions without answers.
type row struct {
	SubmissionID string
	StudentID    int64
	QuizID       int64
	StartTime    time.Time
	EndTime      time.Time
	Submitted    bool
	SubmitTime   *time.Time
	Score        decimal.Decimal

	AnswerID   *int64
	QuestionID *int64
	AnswerQuiz *int64
	AnswerText *string
	Correct    *bool
}

// fold groups rows by submission, preserving the order in which submissions first appear.
func fold(rows []row) []domain.Submission {
	var (
		out   []domain.Submission
		index = make(map[string]int)
	)

	for _, r := range rows {
		i, ok := index[r.SubmissionID]
		if !ok {
			i = len(out)
			index[r.SubmissionID] = i
			out = append(out, domain.Submission{
				SubmissionID: r.SubmissionID,
				StudentID:    r.StudentID,
				QuizID:       r.QuizID,
				StartTime:    r.StartTime,
				EndTime:      r.EndTime,
				Submitted:    r.Submitted,
				SubmitTime:   r.SubmitTime,
				Score:        r.Score,
			})
		}

		if r.AnswerID == nil {
			continue
		}

		out[i].Answers = append(out[i].Answers, domain.Answer{
			AnswerID:   *r.AnswerID,
			QuestionID: deref(r.QuestionID),
			QuizID:     deref(r.AnswerQuiz),
			Text:       deref(r.AnswerText),
			Correct:    deref(r.Correct),
		})
	}

	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
