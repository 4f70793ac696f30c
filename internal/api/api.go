package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
	"github.com/victornm/emstudy/internal/event"
	"github.com/victornm/emstudy/internal/leaderboard"
	"github.com/victornm/emstudy/internal/submission"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Submission   *submission.Service
	Leaderboard  *leaderboard.Service
	Catalog      Catalog
	Redis        Redis
	PubsubPrefix string
	AuthSecret   string
	NowFunc      func() time.Time
}

// Catalog answers the course questions the API needs to decide what a caller may see.
type Catalog interface {
	ResolveQuiz(ctx context.Context, id int64) (*domain.Quiz, error)
	IsCourseTeacher(ctx context.Context, userID, courseID int64) (bool, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	sub     *submission.Service
	ls      *leaderboard.Service
	catalog Catalog

	redis  Redis
	prefix string
	secret []byte
	now    func() time.Time
}

func New(c Config) *API {
	a := &API{
		sub:     c.Submission,
		ls:      c.Leaderboard,
		catalog: c.Catalog,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
		secret:  []byte(c.AuthSecret),
		now:     c.NowFunc,
	}
	if a.now == nil {
		a.now = time.Now
	}

	// HTTP APIs
	g := c.Router.Group("/", a.authenticate)
	g.POST("/submissions/start", a.StartAttempt)
	g.PUT("/submissions/:id", a.SubmitAnswers)
	g.GET("/submissions", a.ListMySubmissions)
	g.GET("/submissions/:id", a.GetSubmission)
	g.GET("/submissions/quiz/:quizId", a.GetMySubmissionForQuiz)
	g.DELETE("/submissions/:id", a.DeleteSubmission)
	g.GET("/quizzes/:quizId/submissions", a.ListQuizSubmissions)
	g.GET("/quizzes/:quizId/leaderboard", a.GetLeaderboard)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameSubmissionSubmitted, func(ctx context.Context, e event.Event) error {
		return a.PublishSubmissionClosed(ctx, e.(domain.EventSubmissionSubmitted))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

type startAttemptQuery struct {
	QuizID int64 `form:"quizId" binding:"required"`
}

func (a *API) StartAttempt(c *gin.Context) {
	var q startAttemptQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, invalidArgument(err))
		return
	}

	sub, err := a.sub.StartAttempt(c.Request.Context(), submission.StartAttemptRequest{
		StudentID: callerID(c),
		QuizID:    q.QuizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSubmission(*sub, a.now(), false))
}

func (a *API) SubmitAnswers(c *gin.Context) {
	var ids []int64
	if err := c.ShouldBindJSON(&ids); err != nil {
		abort(c, invalidArgument(err))
		return
	}

	ctx := c.Request.Context()
	sub, err := a.sub.SubmitAnswers(ctx, submission.SubmitAnswersRequest{
		SubmissionID: c.Param("id"),
		StudentID:    callerID(c),
		AnswerIDs:    ids,
	})
	if err != nil {
		abort(c, err)
		return
	}

	reveal, err := a.revealsCorrectAnswers(ctx, sub.QuizID)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSubmission(*sub, a.now(), reveal))
}

func (a *API) ListMySubmissions(c *gin.Context) {
	ctx := c.Request.Context()

	subs, err := a.sub.ListByStudent(ctx, callerID(c))
	if err != nil {
		abort(c, err)
		return
	}

	reveal := make(map[int64]bool)
	resp := make([]Submission, 0, len(subs))
	for _, s := range subs {
		ok, seen := reveal[s.QuizID]
		if !seen {
			if ok, err = a.revealsCorrectAnswers(ctx, s.QuizID); err != nil {
				abort(c, err)
				return
			}
			reveal[s.QuizID] = ok
		}
		resp = append(resp, newSubmission(s, a.now(), ok))
	}

	c.JSON(http.StatusOK, resp)
}

// GetSubmission serves the owning student, and the teachers of the quiz's course for review.
func (a *API) GetSubmission(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := a.sub.GetByID(ctx, c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	if sub.StudentID == callerID(c) {
		reveal, err := a.revealsCorrectAnswers(ctx, sub.QuizID)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, newSubmission(*sub, a.now(), reveal))
		return
	}

	if _, err := a.requireCourseTeacher(ctx, callerID(c), sub.QuizID); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newSubmission(*sub, a.now(), true))
}

func (a *API) GetMySubmissionForQuiz(c *gin.Context) {
	quizID, err := paramInt64(c, "quizId")
	if err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	sub, err := a.sub.GetByQuizAndStudent(ctx, quizID, callerID(c))
	if err != nil {
		abort(c, err)
		return
	}
	if sub == nil {
		c.Status(http.StatusNoContent)
		return
	}

	reveal, err := a.revealsCorrectAnswers(ctx, quizID)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newSubmission(*sub, a.now(), reveal))
}

// DeleteSubmission lets a student discard their own submission.
func (a *API) DeleteSubmission(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := a.sub.GetByID(ctx, c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	if sub.StudentID != callerID(c) {
		abort(c, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("submission belongs to another student: id=%s", sub.SubmissionID)))
		return
	}

	if err := a.sub.Delete(ctx, sub.SubmissionID); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (a *API) ListQuizSubmissions(c *gin.Context) {
	quizID, err := paramInt64(c, "quizId")
	if err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := a.requireCourseTeacher(ctx, callerID(c), quizID); err != nil {
		abort(c, err)
		return
	}

	subs, err := a.sub.ListByQuiz(ctx, quizID)
	if err != nil {
		abort(c, err)
		return
	}

	resp := make([]Submission, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, newSubmission(s, a.now(), true))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	quizID, err := paramInt64(c, "quizId")
	if err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := a.requireCourseTeacher(ctx, callerID(c), quizID); err != nil {
		abort(c, err)
		return
	}

	l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newLeaderboard(*l))
}

// revealsCorrectAnswers reports whether students may see which answers of the quiz are correct.
func (a *API) revealsCorrectAnswers(ctx context.Context, quizID int64) (bool, error) {
	q, err := a.catalog.ResolveQuiz(ctx, quizID)
	if err != nil {
		return false, err
	}

	return q.ShowCorrectAnswers, nil
}

func (a *API) requireCourseTeacher(ctx context.Context, userID, quizID int64) (*domain.Quiz, error) {
	q, err := a.catalog.ResolveQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	ok, err := a.catalog.IsCourseTeacher(ctx, userID, q.CourseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("not a teacher of the course: user=%d course=%d", userID, q.CourseID))
	}

	return q, nil
}

func paramInt64(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid %s: %q", name, c.Param(name)))
	}

	return v, nil
}

func invalidArgument(err error) *errors.Error {
	return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err), errors.WithCause(err))
}
