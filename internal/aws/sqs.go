package aws

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"meetsync/internal/queue"
)

const (
	keyAttribute       = "job_id"
	maxVisibilityDelay = 12 * time.Hour
	defaultWaitSeconds = 20
)

// Publisher sends job bodies to one SQS queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Publish sends body with the job key as a message attribute.
func (p *Publisher) Publish(ctx context.Context, key string, body []byte) error {
	if p == nil || p.SQS == nil || p.QueueURL == "" {
		return errors.New("sqs publisher not configured")
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: awsString(string(body)),
	}
	if key != "" {
		input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{
			keyAttribute: {
				DataType:    awsString("String"),
				StringValue: awsString(key),
			},
		}
	}
	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error { return nil }

// Consumer receives one message per call, so a worker never holds more than
// one unacknowledged delivery.
type Consumer struct {
	sqs         SQSAPI
	queueURL    string
	waitSeconds int32
	outstanding string
}

func NewConsumer(sqsClient SQSAPI, queueURL string) (*Consumer, error) {
	if sqsClient == nil {
		return nil, errors.New("sqs client is required")
	}
	if queueURL == "" {
		return nil, errors.New("queue url is required")
	}
	return &Consumer{sqs: sqsClient, queueURL: queueURL, waitSeconds: defaultWaitSeconds}, nil
}

func (c *Consumer) Poll(ctx context.Context) (queue.Message, error) {
	if c.outstanding != "" {
		return queue.Message{}, queue.ErrPrefetchExceeded
	}
	for {
		out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    &c.queueURL,
			MaxNumberOfMessages:         1,
			WaitTimeSeconds:             c.waitSeconds,
			MessageAttributeNames:       []string{keyAttribute},
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			return queue.Message{}, fmt.Errorf("receive message: %w", err)
		}
		if len(out.Messages) == 0 {
			if err := ctx.Err(); err != nil {
				return queue.Message{}, err
			}
			continue
		}
		m := out.Messages[0]
		msg := queue.Message{
			ID:   deref(m.MessageId),
			Body: []byte(deref(m.Body)),
			Raw:  deref(m.ReceiptHandle),
		}
		if attr, ok := m.MessageAttributes[keyAttribute]; ok {
			msg.Key = deref(attr.StringValue)
		}
		if n, err := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
			msg.Deliveries = n
		}
		c.outstanding = msg.ID
		return msg, nil
	}
}

func (c *Consumer) Ack(ctx context.Context, msg queue.Message) error {
	handle, err := c.release(msg)
	if err != nil {
		return err
	}
	if _, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: &handle,
	}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Requeue makes the message visible again after delay. SQS caps visibility
// timeouts at twelve hours.
func (c *Consumer) Requeue(ctx context.Context, msg queue.Message, delay time.Duration) error {
	handle, err := c.release(msg)
	if err != nil {
		return err
	}
	if delay > maxVisibilityDelay {
		delay = maxVisibilityDelay
	}
	if delay < 0 {
		delay = 0
	}
	if _, err := c.sqs.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &c.queueURL,
		ReceiptHandle:     &handle,
		VisibilityTimeout: int32(delay / time.Second),
	}); err != nil {
		return fmt.Errorf("change message visibility: %w", err)
	}
	return nil
}

func (c *Consumer) Close() error { return nil }

func (c *Consumer) release(msg queue.Message) (string, error) {
	handle, ok := msg.Raw.(string)
	if !ok || handle == "" {
		return "", errors.New("message has no receipt handle")
	}
	if c.outstanding == msg.ID {
		c.outstanding = ""
	}
	return handle, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
