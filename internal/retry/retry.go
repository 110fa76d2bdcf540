package retry

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Config shapes the exponential backoff between failed job attempts.
type Config struct {
	Base   time.Duration `yaml:"base"`
	Max    time.Duration `yaml:"max"`
	Jitter float64       `yaml:"jitter"`
}

func DefaultConfig() Config {
	return Config{
		Base:   1 * time.Second,
		Max:    60 * time.Second,
		Jitter: 0.2,
	}
}

// OrDefault replaces an entirely unset Config with DefaultConfig. A partly set
// one is returned as is for Validate to judge.
func (c Config) OrDefault() Config {
	if c == (Config{}) {
		return DefaultConfig()
	}
	return c
}

func (c Config) Validate() error {
	if c.Base <= 0 {
		return errors.New("retry.base must be positive")
	}
	if c.Max <= 0 {
		return errors.New("retry.max must be positive")
	}
	if c.Max < c.Base {
		return errors.New("retry.max must be >= retry.base")
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return errors.New("retry.jitter must be in [0,1)")
	}
	return nil
}

// Backoff hands out delays for successive attempts of a job. It is safe for
// concurrent use.
type Backoff struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff validates cfg. A nil rng is seeded from the clock.
func NewBackoff(cfg Config, rng *rand.Rand) (*Backoff, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{cfg: cfg, rng: rng}, nil
}

// Delay is Base doubled per prior attempt, capped at Max, then spread by
// +/- Jitter. Attempts below 1 count as the first.
func (b *Backoff) Delay(attempt int64) time.Duration {
	delay := b.cfg.Base
	for i := int64(1); i < attempt && delay < b.cfg.Max; i++ {
		delay *= 2
	}
	if delay > b.cfg.Max {
		delay = b.cfg.Max
	}
	if b.cfg.Jitter == 0 {
		return delay
	}

	b.mu.Lock()
	delta := (b.rng.Float64()*2 - 1) * b.cfg.Jitter
	b.mu.Unlock()
	jittered := time.Duration(float64(delay) * (1 + delta))
	if jittered < time.Millisecond {
		jittered = time.Millisecond
	}
	return jittered
}

// Max is the longest un-jittered delay.
func (b *Backoff) Max() time.Duration {
	return b.cfg.Max
}

// NextScore is the retry ZSET score, in unix milliseconds, for a job due
// after delay.
func NextScore(now time.Time, delay time.Duration) float64 {
	return float64(now.Add(delay).UnixMilli())
}
