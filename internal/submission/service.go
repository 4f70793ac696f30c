// Package submission runs the lifecycle of quiz submissions: starting a timed attempt, accepting
// the selected answers exactly once before the deadline and scoring them.
package submission

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
	"github.com/victornm/emstudy/internal/event"
	"github.com/victornm/emstudy/internal/score"
	"github.com/victornm/emstudy/internal/telemetry"
)

// Catalog resolves the course data a submission is checked against.
type Catalog interface {
	ResolveStudent(ctx context.Context, id int64) (*domain.Student, error)
	ResolveQuiz(ctx context.Context, id int64) (*domain.Quiz, error)
	ResolveAnswersByIDs(ctx context.Context, ids []int64) ([]domain.Answer, error)
	IsActivelyEnrolled(ctx context.Context, studentID, courseID int64) (bool, error)
}

// QuizResolver loads quiz definitions, usually through a cache. It only serves StartAttempt.
type QuizResolver interface {
	ResolveQuiz(ctx context.Context, id int64) (*domain.Quiz, error)
}

type Config struct {
	Store    Store
	Catalog  Catalog
	Quizzes  QuizResolver
	EventBus *event.Bus
	NowFunc  func() time.Time
}

type Service struct {
	store   Store
	catalog Catalog
	quizzes QuizResolver
	eb      *event.Bus
	nowFunc func() time.Time
}

// NewService creates the engine. Quizzes defaults to Catalog and NowFunc to time.Now.
func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		catalog: c.Catalog,
		quizzes: c.Quizzes,
		eb:      c.EventBus,
		nowFunc: c.NowFunc,
	}

	if s.quizzes == nil {
		s.quizzes = c.Catalog
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}

	return s
}

type StartAttemptRequest struct {
	StudentID int64
	QuizID    int64
}

// StartAttempt opens a new submission for the student with a deadline of the quiz duration.
func (s *Service) StartAttempt(ctx context.Context, req StartAttemptRequest) (_ *domain.Submission, err error) {
	defer func() {
		if err != nil {
			telemetry.SubmissionRejected("start", err)
		}
	}()

	if _, err := s.catalog.ResolveStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}

	q, err := s.quizzes.ResolveQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.catalog.IsActivelyEnrolled(ctx, req.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("not enrolled: student=%d course=%d", req.StudentID, q.CourseID))
	}

	_, err = s.store.FindOpenByStudentAndQuiz(ctx, req.StudentID, q.QuizID)
	switch {
	case err == nil:
		return nil, alreadyStarted(req.StudentID, q.QuizID, nil)
	case !errors.Is(err, errors.CodeNotFound):
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate submission ID: %w", err)
	}

	now := s.now()
	sub := &domain.Submission{
		SubmissionID: id.String(),
		StudentID:    req.StudentID,
		QuizID:       q.QuizID,
		StartTime:    now,
		EndTime:      now.Add(q.Duration()),
		Score:        decimal.Zero,
	}

	// The open-attempt index settles concurrent starts that both passed the lookup above.
	if err := s.store.Insert(ctx, sub); err != nil {
		if errors.Is(err, errors.CodeAlreadyExists) {
			return nil, alreadyStarted(req.StudentID, q.QuizID, err)
		}
		return nil, err
	}

	telemetry.SubmissionStarted()
	s.eb.Publish(ctx, domain.EventSubmissionStarted{
		Submission: *sub,
	})

	return sub, nil
}

type SubmitAnswersRequest struct {
	SubmissionID string
	// StudentID is the student acting on the submission.
	StudentID int64
	AnswerIDs []int64
}

// SubmitAnswers records the selected answers, scores them and closes the submission.
// Nothing is written unless every check passes.
func (s *Service) SubmitAnswers(ctx context.Context, req SubmitAnswersRequest) (_ *domain.Submission, err error) {
	defer func() {
		if err != nil {
			telemetry.SubmissionRejected("submit", err)
		}
	}()

	sub, err := s.store.FindByID(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}

	if sub.StudentID != req.StudentID {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("submission belongs to another student: id=%s", sub.SubmissionID))
	}

	if sub.Submitted {
		return nil, alreadySubmitted(sub.SubmissionID)
	}

	now := s.now()
	if sub.Expired(now) {
		return nil, deadlineExceeded(sub)
	}

	if len(req.AnswerIDs) == 0 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no answers: id=%s", sub.SubmissionID))
	}

	answers, err := s.catalog.ResolveAnswersByIDs(ctx, req.AnswerIDs)
	if err != nil {
		return nil, err
	}
	if len(answers) != len(req.AnswerIDs) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("answers not found or repeated: requested=%d resolved=%d", len(req.AnswerIDs), len(answers)))
	}

	for _, a := range answers {
		if a.QuizID != sub.QuizID {
			return nil, errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("answers must belong to the same quiz: answer=%d quiz=%d submission_quiz=%d", a.AnswerID, a.QuizID, sub.QuizID))
		}
	}

	// Scored against the catalog itself so the quiz matches the answers just resolved.
	q, err := s.catalog.ResolveQuiz(ctx, sub.QuizID)
	if err != nil {
		return nil, err
	}

	r, err := score.Compute(*q, answers)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("score submission %s: %w", sub.SubmissionID, err))
	}

	closed := *sub
	closed.Answers = answers
	closed.Score = r.Percent
	closed.Submitted = true
	closed.SubmitTime = &now

	if err := s.store.Finalize(ctx, &closed, now); err != nil {
		if stderrors.Is(err, ErrNotOpen) {
			return nil, s.explainNotOpen(ctx, sub.SubmissionID, now)
		}
		return nil, err
	}

	telemetry.SubmissionClosed(r.Percent.InexactFloat64())
	s.eb.Publish(ctx, domain.EventSubmissionSubmitted{
		Submission: closed,
		CourseID:   q.CourseID,
	})

	return &closed, nil
}

// explainNotOpen reloads a submission whose conditional close was refused and reports why.
func (s *Service) explainNotOpen(ctx context.Context, id string, now time.Time) error {
	sub, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if sub.Submitted {
		return alreadySubmitted(id)
	}
	if sub.Expired(now) {
		return deadlineExceeded(sub)
	}

	return errors.Internal(fmt.Errorf("close submission %s: %w", id, ErrNotOpen))
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	return s.store.FindByID(ctx, id)
}

// GetByQuizAndStudent returns the student's latest submission for the quiz, or nil when the student
// has not started it.
func (s *Service) GetByQuizAndStudent(ctx context.Context, quizID, studentID int64) (*domain.Submission, error) {
	sub, err := s.store.FindLatestByStudentAndQuiz(ctx, studentID, quizID)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (s *Service) ListByQuiz(ctx context.Context, quizID int64) ([]domain.Submission, error) {
	return s.store.FindByQuiz(ctx, quizID)
}

func (s *Service) ListByStudent(ctx context.Context, studentID int64) ([]domain.Submission, error) {
	return s.store.FindByStudent(ctx, studentID)
}

// Delete removes the submission together with its recorded answers.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteByID(ctx, id)
}

// now is truncated to the precision both stores keep, so a returned submission equals its stored form.
func (s *Service) now() time.Time {
	return s.nowFunc().UTC().Truncate(time.Microsecond)
}

func alreadyStarted(studentID, quizID int64, cause error) *errors.Error {
	opts := []errors.Option{
		errors.WithMessagef("already started: student=%d quiz=%d", studentID, quizID),
	}
	if cause != nil {
		opts = append(opts, errors.WithCause(cause))
	}

	return errors.New(errors.CodeFailedPrecondition, opts...)
}

func alreadySubmitted(id string) *errors.Error {
	return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("already submitted: id=%s", id))
}

func deadlineExceeded(sub *domain.Submission) *errors.Error {
	return errors.New(errors.CodeDeadlineExceeded,
		errors.WithMessagef("time is up: id=%s end_time=%s", sub.SubmissionID, sub.EndTime.Format(time.RFC3339)))
}
