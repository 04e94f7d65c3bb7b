package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	questionCacheTTL    = 30 * time.Minute
	questionCacheJitter = 5 * time.Minute
)

// QuestionCache fronts QuizStore.Questions with Redis. Scoring reads the
// full question set on every attempt, so popular quizzes would otherwise
// hammer the database. Misses are collapsed with singleflight and TTLs are
// jittered so hot quizzes do not expire in lockstep. Cache failures degrade
// to the store, never to an error.
type QuestionCache struct {
	client *redis.Client
	store  QuizStore
	ttl    time.Duration
	jitter time.Duration
	sf     singleflight.Group
}

// NewQuestionCache creates a cache over the given store.
func NewQuestionCache(client *redis.Client, store QuizStore) *QuestionCache {
	return &QuestionCache{
		client: client,
		store:  store,
		ttl:    questionCacheTTL,
		jitter: questionCacheJitter,
	}
}

func questionCacheKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

// Questions returns the quiz's questions, from cache when possible.
func (c *QuestionCache) Questions(ctx context.Context, quizID string) ([]Question, error) {
	key := questionCacheKey(quizID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var questions []Question
		if err := json.Unmarshal(data, &questions); err == nil {
			return questions, nil
		}
		slog.Warn("question cache entry corrupt, reloading", "quiz_id", quizID)
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("question cache read failed", "quiz_id", quizID, "error", err)
	}

	v, err, _ := c.sf.Do(quizID, func() (any, error) {
		questions, err := c.store.Questions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		if payload, err := json.Marshal(questions); err == nil {
			ttl := c.ttl + rand.N(c.jitter)
			if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
				slog.Warn("question cache write failed", "quiz_id", quizID, "error", err)
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Question), nil
}

// Invalidate drops the cached questions for a quiz.
func (c *QuestionCache) Invalidate(ctx context.Context, quizID string) {
	if err := c.client.Del(ctx, questionCacheKey(quizID)).Err(); err != nil {
		slog.Warn("question cache invalidate failed", "quiz_id", quizID, "error", err)
	}
}
