package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/emstudy/internal/domain"
)

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishSubmissionClosed notifies the student with the view they are allowed to see, and the quiz
// review channel with the full submission.
func (a *API) PublishSubmissionClosed(ctx context.Context, e domain.EventSubmissionSubmitted) error {
	sub := e.Submission

	reveal, err := a.revealsCorrectAnswers(ctx, sub.QuizID)
	if err != nil {
		return fmt.Errorf("pubsub: resolve quiz %d: %w", sub.QuizID, err)
	}

	now := a.now()

	var eg errgroup.Group
	eg.Go(func() error {
		return a.publishNotification(ctx, a.studentChannel(sub.StudentID), e.Name(), newSubmission(sub, now, reveal))
	})
	eg.Go(func() error {
		return a.publishNotification(ctx, a.quizChannel(sub.QuizID), e.Name(), newSubmission(sub, now, true))
	})

	return eg.Wait()
}

// PublishLeaderboardUpdated sends the new ranking to the quiz review channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard
	return a.publishNotification(ctx, a.quizChannel(l.QuizID), e.Name(), newLeaderboard(l))
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) studentChannel(studentID int64) string {
	return fmt.Sprintf("%s:student:%d", a.prefix, studentID)
}

func (a *API) quizChannel(quizID int64) string {
	return fmt.Sprintf("%s:quiz:%d", a.prefix, quizID)
}
