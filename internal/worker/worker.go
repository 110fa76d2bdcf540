package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"meetsync/internal/aggregate"
	"meetsync/internal/logging"
	"meetsync/internal/metrics"
	"meetsync/internal/queue"
	"meetsync/internal/retry"
	"meetsync/internal/state"
)

const (
	DefaultMaxAttempts = 5
	DefaultJobTimeout  = 15 * time.Second

	pollBackoff = 500 * time.Millisecond
)

// ErrSettleFailed means a message could be neither acked nor requeued. Run
// stops on it so the broker redelivers from its last committed position.
var ErrSettleFailed = errors.New("message could not be settled")

// Processor does the work for one job.
type Processor interface {
	Process(ctx context.Context, job queue.Job) (aggregate.Suggestion, error)
}

// Tracker is satisfied by *state.Tracker.
type Tracker interface {
	Get(ctx context.Context, jobID string) (state.State, error)
	Set(ctx context.Context, jobID string, s state.State) error
	Transition(ctx context.Context, jobID string, next state.State) error
	BumpAttempt(ctx context.Context, jobID string) (int64, error)
	ClearAttempts(ctx context.Context, jobID string) error
}

// ProcessingError reports a failed attempt. DeadLettered is set when the job
// will not be retried.
type ProcessingError struct {
	JobID        string
	CaseID       string
	Attempt      int64
	DeadLettered bool
	Err          error
}

func (e *ProcessingError) Error() string {
	outcome := "requeued"
	if e.DeadLettered {
		outcome = "dead-lettered"
	}
	return fmt.Sprintf("job %s attempt %d failed (%s): %v", e.JobID, e.Attempt, outcome, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

type Config struct {
	// MaxAttempts bounds failed attempts before dead-lettering. Zero or less
	// means retry forever.
	MaxAttempts int           `yaml:"max_attempts" env:"WORKER_MAX_ATTEMPTS"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	Retry       retry.Config  `yaml:"retry"`
}

func (c Config) withDefaults() Config {
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	c.Retry = c.Retry.OrDefault()
	return c
}

type Options struct {
	Config  Config
	Logger  *zap.Logger
	Metrics metrics.Recorder
}

type Worker struct {
	consumer   queue.Consumer
	deadLetter queue.Producer
	tracker    Tracker
	processor  Processor
	metrics    metrics.Recorder
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
	backoff    *retry.Backoff
}

func New(consumer queue.Consumer, tracker Tracker, processor Processor, deadLetter queue.Producer, opts Options) (*Worker, error) {
	if consumer == nil {
		return nil, errors.New("consumer is required")
	}
	if tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if deadLetter == nil {
		return nil, errors.New("dead-letter producer is required")
	}
	cfg := opts.Config.withDefaults()
	backoff, err := retry.NewBackoff(cfg.Retry, nil)
	if err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Worker{
		consumer:   consumer,
		deadLetter: deadLetter,
		tracker:    tracker,
		processor:  processor,
		metrics:    rec,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		backoff:    backoff,
	}, nil
}

// Run handles one message at a time until ctx is done or a message cannot be
// settled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("worker poll error", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollBackoff):
			}
			continue
		}
		if err := w.Handle(ctx, msg); err != nil {
			if errors.Is(err, ErrSettleFailed) {
				return err
			}
			w.logger.Debug("worker handle error", zap.Error(err))
		}
	}
}

// Handle runs one delivery through decode, process and settle. The returned
// error is a *ProcessingError for a failed attempt.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	start := w.now()
	job, err := queue.DecodeJob(msg.Body)
	if err != nil {
		return w.handlePoison(ctx, msg, err, start)
	}

	ctx = logging.ContextWithCaseID(ctx, job.CaseID)
	log := logging.FromContext(ctx, w.logger).With(zap.String("job_id", job.JobID))

	cur, err := w.tracker.Get(ctx, job.JobID)
	if err != nil {
		log.Warn("job state read failed", zap.Error(err))
	} else if state.IsTerminal(cur) {
		log.Info("JOB_DUPLICATE", zap.String("state", string(cur)))
		if err := w.consumer.Ack(ctx, msg); err != nil {
			return fmt.Errorf("%w: ack duplicate: %v", ErrSettleFailed, err)
		}
		w.metrics.JobOutcome(ctx, metrics.Duplicate, w.now().Sub(start))
		return nil
	}
	w.setState(ctx, log, job.JobID, state.InFlight)

	log.Info("JOB_START",
		zap.String("userId1", job.UserID1),
		zap.String("userId2", job.UserID2),
		zap.String("preference", job.Preference))

	pctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	suggestion, procErr := w.processor.Process(pctx, job)
	cancel()

	if procErr == nil {
		log.Info("JOB_DONE", zap.Any("suggestion", suggestion))
		w.transition(ctx, log, job.JobID, state.Acked)
		if err := w.consumer.Ack(ctx, msg); err != nil {
			return fmt.Errorf("%w: ack: %v", ErrSettleFailed, err)
		}
		if err := w.tracker.ClearAttempts(ctx, job.JobID); err != nil {
			log.Warn("attempt counter clear failed", zap.Error(err))
		}
		w.metrics.JobOutcome(ctx, metrics.Completed, w.now().Sub(start))
		return nil
	}

	log.Error("JOB_ERROR", zap.Error(procErr))
	attempt, err := w.tracker.BumpAttempt(ctx, job.JobID)
	if err != nil {
		log.Warn("attempt increment failed", zap.Error(err))
		attempt = int64(max(msg.Deliveries, 1))
	}
	perr := &ProcessingError{JobID: job.JobID, CaseID: job.CaseID, Attempt: attempt, Err: procErr}

	if w.cfg.MaxAttempts <= 0 || attempt < int64(w.cfg.MaxAttempts) {
		if err := w.requeue(ctx, log, msg, job.JobID, attempt); err != nil {
			return err
		}
		w.metrics.JobOutcome(ctx, metrics.Requeued, w.now().Sub(start))
		return perr
	}

	perr.DeadLettered = true
	if err := w.deadLetter.Publish(ctx, job.JobID, msg.Body); err != nil {
		log.Error("dead-letter publish failed; requeueing instead", zap.Error(err))
		if err := w.requeue(ctx, log, msg, job.JobID, attempt); err != nil {
			return err
		}
		perr.DeadLettered = false
		w.metrics.JobOutcome(ctx, metrics.Requeued, w.now().Sub(start))
		return perr
	}
	log.Warn("JOB_DEAD_LETTERED", zap.Int64("attempt", attempt))
	w.transition(ctx, log, job.JobID, state.DeadLettered)
	if err := w.consumer.Ack(ctx, msg); err != nil {
		return fmt.Errorf("%w: ack dead-lettered: %v", ErrSettleFailed, err)
	}
	w.metrics.JobOutcome(ctx, metrics.DeadLettered, w.now().Sub(start))
	return perr
}

func (w *Worker) requeue(ctx context.Context, log *zap.Logger, msg queue.Message, jobID string, attempt int64) error {
	delay := w.backoff.Delay(attempt)
	w.transition(ctx, log, jobID, state.Requeued)
	if err := w.consumer.Requeue(ctx, msg, delay); err != nil {
		return fmt.Errorf("%w: requeue: %v", ErrSettleFailed, err)
	}
	log.Info("JOB_REQUEUED", zap.Int64("attempt", attempt), zap.Duration("delay", delay))
	return nil
}

// handlePoison dead-letters a body that cannot be decoded.
func (w *Worker) handlePoison(ctx context.Context, msg queue.Message, cause error, start time.Time) error {
	log := w.logger.With(zap.String("message_id", msg.ID), zap.String("key", msg.Key))
	log.Error("JOB_POISON", zap.Error(cause))
	if err := w.deadLetter.Publish(ctx, msg.Key, msg.Body); err != nil {
		log.Error("dead-letter publish failed", zap.Error(err))
		if err := w.consumer.Requeue(ctx, msg, w.backoff.Max()); err != nil {
			return fmt.Errorf("%w: requeue poison: %v", ErrSettleFailed, err)
		}
		return cause
	}
	if msg.Key != "" {
		w.setState(ctx, log, msg.Key, state.DeadLettered)
	}
	if err := w.consumer.Ack(ctx, msg); err != nil {
		return fmt.Errorf("%w: ack poison: %v", ErrSettleFailed, err)
	}
	w.metrics.JobOutcome(ctx, metrics.DeadLettered, w.now().Sub(start))
	return cause
}

func (w *Worker) setState(ctx context.Context, log *zap.Logger, jobID string, s state.State) {
	if err := w.tracker.Set(ctx, jobID, s); err != nil {
		log.Warn("job state update failed", zap.String("state", string(s)), zap.Error(err))
	}
}

func (w *Worker) transition(ctx context.Context, log *zap.Logger, jobID string, s state.State) {
	if err := w.tracker.Transition(ctx, jobID, s); err != nil {
		log.Warn("job state transition failed", zap.String("state", string(s)), zap.Error(err))
	}
}
