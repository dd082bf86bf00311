package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// scoreKeyPrefix namespaces per-user score keys in a shared Redis.
const scoreKeyPrefix = "quizarena:score:"

// RedisScores is a ScoreRecorder backed by Redis, for deployments that
// share one scoreboard across several server instances. It is only ever a
// score sink: match state never lives here.
type RedisScores struct {
	rdb *redis.Client
}

var _ ScoreRecorder = (*RedisScores)(nil)

// NewRedisScores creates a recorder for the given Redis address.
func NewRedisScores(addr, password string, db int) *RedisScores {
	return &RedisScores{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies the Redis connection.
func (r *RedisScores) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: redis ping: %w", err)
	}
	return nil
}

// AddScore atomically adds a non-negative delta to a user's score key.
func (r *RedisScores) AddScore(ctx context.Context, userID int64, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	key := fmt.Sprintf("%s%d", scoreKeyPrefix, userID)
	if err := r.rdb.IncrBy(ctx, key, delta).Err(); err != nil {
		return fmt.Errorf("store: redis add score: %w", err)
	}
	return nil
}

// Score reads a user's cumulative score; missing keys read as zero.
func (r *RedisScores) Score(ctx context.Context, userID int64) (int64, error) {
	key := fmt.Sprintf("%s%d", scoreKeyPrefix, userID)
	n, err := r.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: redis read score: %w", err)
	}
	return n, nil
}

// Close releases the underlying Redis client.
func (r *RedisScores) Close() error {
	return r.rdb.Close()
}
