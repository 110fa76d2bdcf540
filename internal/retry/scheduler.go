package retry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"meetsync/internal/rediskeys"
)

// ErrMissingData means a scheduled id has no stored job body.
var ErrMissingData = errors.New("retry job data missing")

// Scheduler parks job bodies in Redis until they are due for redelivery.
type Scheduler struct {
	redis redis.Cmdable
	now   func() time.Time
}

func NewScheduler(client redis.Cmdable) *Scheduler {
	return &Scheduler{redis: client, now: time.Now}
}

func (s *Scheduler) Schedule(ctx context.Context, jobID string, body []byte, delay time.Duration) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, rediskeys.JobDataKey(jobID), body, rediskeys.JobDataTTL)
	pipe.ZAdd(ctx, rediskeys.RetryJobsKey, redis.Z{Score: NextScore(s.now(), delay), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// Due returns up to limit job ids whose retry time has passed, oldest first.
func (s *Scheduler) Due(ctx context.Context, limit int64) ([]string, error) {
	max := strconv.FormatInt(s.now().UnixMilli(), 10)
	ids, err := s.redis.ZRangeByScore(ctx, rediskeys.RetryJobsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   max,
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due retries: %w", err)
	}
	return ids, nil
}

func (s *Scheduler) Load(ctx context.Context, jobID string) ([]byte, error) {
	body, err := s.redis.Get(ctx, rediskeys.JobDataKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissingData
	}
	if err != nil {
		return nil, fmt.Errorf("load retry data: %w", err)
	}
	return body, nil
}

// Remove drops the id from the schedule together with its stored body.
func (s *Scheduler) Remove(ctx context.Context, jobID string) error {
	pipe := s.redis.TxPipeline()
	pipe.ZRem(ctx, rediskeys.RetryJobsKey, jobID)
	pipe.Del(ctx, rediskeys.JobDataKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove retry: %w", err)
	}
	return nil
}
