package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/emstudy/internal/domain"
)

const defaultQuizTTL = 5 * time.Minute

// QuizSource loads quiz definitions from the system of record.
type QuizSource interface {
	ResolveQuiz(ctx context.Context, id int64) (*domain.Quiz, error)
}

type CacheConfig struct {
	Source QuizSource
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

// Cache keeps quiz definitions in redis in front of a QuizSource.
// Redis failures degrade to reading the source directly.
type Cache struct {
	source QuizSource
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCache(c CacheConfig) *Cache {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultQuizTTL
	}

	return &Cache{
		source: c.Source,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
	}
}

// ResolveQuiz returns the cached quiz, loading and caching it on a miss.
func (c *Cache) ResolveQuiz(ctx context.Context, id int64) (*domain.Quiz, error) {
	key := c.getQuizKey(id)

	b, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var q domain.Quiz
		if err := json.Unmarshal(b, &q); err == nil {
			return &q, nil
		}
		slog.WarnContext(ctx, "catalog: drop undecodable cached quiz", "quiz_id", id, "error", err)
	case !stderrors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "catalog: read quiz cache failed", "quiz_id", id, "error", err)
	}

	q, err := c.source.ResolveQuiz(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, q); err != nil {
		slog.WarnContext(ctx, "catalog: write quiz cache failed", "quiz_id", id, "error", err)
	}

	return q, nil
}

// Invalidate drops the cached definition of a quiz.
func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	if err := c.redis.Del(ctx, c.getQuizKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate quiz %d: %w", id, err)
	}
	return nil
}

func (c *Cache) store(ctx context.Context, key string, q *domain.Quiz) error {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}

	return c.redis.Set(ctx, key, b, c.ttl).Err()
}

func (c *Cache) getQuizKey(id int64) string {
	return fmt.Sprintf("%s:quiz:%d", c.prefix, id)
}
