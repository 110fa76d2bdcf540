package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meetsync/internal/rediskeys"
)

// Tracker records job delivery state and failed attempt counts in Redis.
type Tracker struct {
	redis redis.Cmdable
}

func NewTracker(client redis.Cmdable) *Tracker {
	return &Tracker{redis: client}
}

func (t *Tracker) Set(ctx context.Context, jobID string, s State) error {
	if err := t.redis.Set(ctx, rediskeys.JobKey(jobID), string(s), retention(s)).Err(); err != nil {
		return fmt.Errorf("set job state: %w", err)
	}
	return nil
}

// Get returns Pending for a job that has no recorded state yet.
func (t *Tracker) Get(ctx context.Context, jobID string) (State, error) {
	val, err := t.redis.Get(ctx, rediskeys.JobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return Pending, nil
	}
	if err != nil {
		return "", fmt.Errorf("get job state: %w", err)
	}
	return State(val), nil
}

// Transition moves the job to next when the move is allowed from its current
// state. A disallowed move is reported and nothing is written.
func (t *Tracker) Transition(ctx context.Context, jobID string, next State) error {
	cur, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !CanTransition(cur, next) {
		return fmt.Errorf("job %s: transition %s -> %s not allowed", jobID, cur, next)
	}
	return t.Set(ctx, jobID, next)
}

// BumpAttempt increments the failed attempt counter and returns the new count.
func (t *Tracker) BumpAttempt(ctx context.Context, jobID string) (int64, error) {
	key := rediskeys.AttemptKey(jobID)
	attempt, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr attempts: %w", err)
	}
	if attempt == 1 {
		if err := t.redis.Expire(ctx, key, rediskeys.AttemptTTL).Err(); err != nil {
			return attempt, fmt.Errorf("expire attempts: %w", err)
		}
	}
	return attempt, nil
}

func (t *Tracker) ClearAttempts(ctx context.Context, jobID string) error {
	return t.redis.Del(ctx, rediskeys.AttemptKey(jobID)).Err()
}

func retention(s State) time.Duration {
	if s == DeadLettered {
		return rediskeys.DLQTTL
	}
	return rediskeys.JobStatusTTL
}
