package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
	"github.com/victornm/emstudy/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	maxRetries      = 3
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service ranks the students of each quiz by their best closed submission.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameSubmissionSubmitted, func(ctx context.Context, e event.Event) error {
		return s.RecordScore(ctx, e.(domain.EventSubmissionSubmitted))
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID int64
}

// GetLeaderboard returns the ranking of a quiz, best score first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.QuizID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: quiz=%d", req.QuizID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		id, err := strconv.ParseInt(z.Member.(string), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse leaderboard member %v: %w", z.Member, err)
		}

		entries = append(entries, domain.LeaderboardEntry{
			StudentID: id,
			Score:     z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// RecordScore keeps the student's score of a closed submission when it beats their previous best.
func (s *Service) RecordScore(ctx context.Context, e domain.EventSubmissionSubmitted) error {
	sub := e.Submission
	key := s.getLeaderboardKey(sub.QuizID)
	member := strconv.FormatInt(sub.StudentID, 10)
	score := sub.Score.InexactFloat64()

	keepBest := func(tx *redis.Tx) error {
		best, err := tx.ZScore(ctx, key, member).Result()
		switch {
		case stderrors.Is(err, redis.Nil):
		case err != nil:
			return err
		case best >= score:
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
			return nil
		})
		return err
	}

	var err error
	for range maxRetries {
		err = s.redis.Watch(ctx, keepBest, key)
		if !stderrors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("update leaderboard: quiz=%d: %w", sub.QuizID, err)
	}

	at := sub.StartTime
	if sub.SubmitTime != nil {
		at = *sub.SubmitTime
	}

	return s.schedulePublishLeaderboard(ctx, sub.QuizID, at)
}

// schedulePublishLeaderboard publishes at most one leaderboard change per quiz and publish interval.
// Scores of a quiz tend to arrive in bursts near its deadline.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, quizID int64, at time.Time) error {
	// SetNX only guards a single redis, concurrent instances may still both publish.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(quizID), at.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, quizID)
}

func (s *Service) publishLeaderboard(ctx context.Context, quizID int64) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%d: %w", quizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey(quizID int64) string {
	return fmt.Sprintf("%s:quiz:%d:leaderboard", s.prefix, quizID)
}

func (s *Service) getLeaderboardTimeKey(quizID int64) string {
	return fmt.Sprintf("%s:quiz:%d:time", s.prefix, quizID)
}
