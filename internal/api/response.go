package api

import (
	"log/slog"
	"math"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
)

type (
	Submission struct {
		SubmissionID     string     `json:"submission_id"`
		StudentID        int64      `json:"student_id"`
		QuizID           int64      `json:"quiz_id"`
		StartTime        time.Time  `json:"start_time"`
		EndTime          time.Time  `json:"end_time"`
		Submitted        bool       `json:"submitted"`
		SubmitTime       *time.Time `json:"submit_time,omitempty"`
		Score            string     `json:"score"`
		RemainingSeconds int64      `json:"remaining_seconds"`
		// AnswersRevealed tells whether the answers carry Correct.
		AnswersRevealed bool     `json:"answers_revealed"`
		Answers         []Answer `json:"answers"`
	}

	Answer struct {
		AnswerID   int64  `json:"answer_id"`
		QuestionID int64  `json:"question_id"`
		Text       string `json:"text"`
		// Correct is omitted unless the quiz reveals correct answers to the caller.
		Correct *bool `json:"correct,omitempty"`
	}

	Leaderboard struct {
		QuizID  int64              `json:"quiz_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		StudentID int64   `json:"student_id"`
		Score     float64 `json:"score"`
	}
)

func newSubmission(s domain.Submission, now time.Time, reveal bool) Submission {
	resp := Submission{
		SubmissionID:     s.SubmissionID,
		StudentID:        s.StudentID,
		QuizID:           s.QuizID,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Submitted:        s.Submitted,
		SubmitTime:       s.SubmitTime,
		Score:            s.Score.StringFixed(2),
		RemainingSeconds: int64(math.Ceil(s.Remaining(now).Seconds())),
		AnswersRevealed:  reveal,
		Answers:          make([]Answer, 0, len(s.Answers)),
	}

	for _, a := range s.Answers {
		resp.Answers = append(resp.Answers, Answer{
			AnswerID:   a.AnswerID,
			QuestionID: a.QuestionID,
			Text:       a.Text,
			Correct:    correctness(a, reveal),
		})
	}

	return resp
}

func correctness(a domain.Answer, reveal bool) *bool {
	if !reveal {
		return nil
	}
	return &a.Correct
}

func newLeaderboard(l domain.Leaderboard) Leaderboard {
	resp := Leaderboard{
		QuizID:  l.QuizID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, e := range l.Entries {
		resp.Entries = append(resp.Entries, LeaderboardEntry{
			StudentID: e.StudentID,
			Score:     e.Score,
		})
	}

	return resp
}

// abort writes err as {"code", "message"} with the status of its code.
func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
