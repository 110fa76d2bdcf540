package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetsync/internal/logging"
)

// Request is what a producer asks for; ids are filled in by Enqueue.
type Request struct {
	CaseID     string
	UserID1    string
	UserID2    string
	Preference string
}

// Publisher turns requests into jobs on one named queue.
type Publisher struct {
	producer Producer
	name     string
	newID    func() string
	logger   *zap.Logger
}

func NewPublisher(producer Producer, name string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		producer: producer,
		name:     name,
		newID:    uuid.NewString,
		logger:   logger,
	}
}

func (p *Publisher) Queue() string {
	return p.name
}

// Enqueue returns only after the backend has accepted the job. A backend
// failure is reported as ErrQueueUnavailable and the job is not retried here.
func (p *Publisher) Enqueue(ctx context.Context, req Request) (Job, error) {
	job := Job{
		CaseID:     req.CaseID,
		JobID:      p.newID(),
		UserID1:    req.UserID1,
		UserID2:    req.UserID2,
		Preference: req.Preference,
	}
	if job.CaseID == "" {
		job.CaseID = p.newID()
	}
	body, err := job.Encode()
	if err != nil {
		return Job{}, fmt.Errorf("encode job: %w", err)
	}
	log := logging.FromContext(ctx, p.logger).With(zap.String("job_id", job.JobID), zap.String("queue", p.name))
	if err := p.producer.Publish(ctx, job.JobID, body); err != nil {
		log.Error("ENQUEUE_FAILED", zap.Error(err))
		return Job{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	log.Info("ENQUEUE", zap.String("userId1", job.UserID1), zap.String("userId2", job.UserID2))
	return job, nil
}
