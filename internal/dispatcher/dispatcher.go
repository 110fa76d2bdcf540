// Package dispatcher moves due retries from Redis back onto the jobs topic.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"meetsync/internal/queue"
	"meetsync/internal/rediskeys"
	"meetsync/internal/retry"
)

const DefaultBatch = 100

var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Schedule is satisfied by *retry.Scheduler.
type Schedule interface {
	Due(ctx context.Context, limit int64) ([]string, error)
	Load(ctx context.Context, jobID string) ([]byte, error)
	Remove(ctx context.Context, jobID string) error
}

type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Batch        int64         `yaml:"batch"`
}

type Dispatcher struct {
	redis    redis.Cmdable
	schedule Schedule
	producer queue.Producer
	cfg      Config
	owner    string
	logger   *zap.Logger
}

func New(client redis.Cmdable, schedule Schedule, producer queue.Producer, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if schedule == nil {
		return nil, errors.New("schedule is required")
	}
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		redis:    client,
		schedule: schedule,
		producer: producer,
		cfg:      cfg,
		owner:    uuid.NewString(),
		logger:   logger,
	}, nil
}

func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("retry dispatch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DispatchOnce republishes up to one batch of due jobs and returns how many
// went out. It does nothing when another dispatcher holds the lock.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	ok, err := d.redis.SetNX(ctx, rediskeys.RetryLockKey, d.owner, rediskeys.RetryLockTTL).Result()
	if err != nil {
		return 0, fmt.Errorf("acquire retry lock: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer func() {
		if err := releaseLock.Run(context.WithoutCancel(ctx), d.redis, []string{rediskeys.RetryLockKey}, d.owner).Err(); err != nil {
			d.logger.Warn("release retry lock failed", zap.Error(err))
		}
	}()

	ids, err := d.schedule.Due(ctx, d.cfg.Batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, id := range ids {
		log := d.logger.With(zap.String("job_id", id))
		body, err := d.schedule.Load(ctx, id)
		if errors.Is(err, retry.ErrMissingData) {
			log.Warn("retry data missing; dropping schedule entry")
			if err := d.schedule.Remove(ctx, id); err != nil {
				log.Warn("remove retry failed", zap.Error(err))
			}
			continue
		}
		if err != nil {
			return sent, err
		}
		if err := d.producer.Publish(ctx, id, body); err != nil {
			return sent, fmt.Errorf("republish %s: %w", id, err)
		}
		if err := d.schedule.Remove(ctx, id); err != nil {
			// already republished; a second copy is tolerated downstream
			log.Warn("remove retry failed", zap.Error(err))
		}
		log.Info("RETRY_DISPATCHED")
		sent++
	}
	return sent, nil
}
