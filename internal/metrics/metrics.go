package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"meetsync/internal/aws"
)

type Outcome string

const (
	Completed    Outcome = "completed"
	Requeued     Outcome = "requeued"
	DeadLettered Outcome = "dead_lettered"
	Duplicate    Outcome = "duplicate"
)

// Recorder counts job outcomes. Implementations must not fail the caller.
type Recorder interface {
	JobOutcome(ctx context.Context, outcome Outcome, elapsed time.Duration)
}

type Noop struct{}

func (Noop) JobOutcome(ctx context.Context, outcome Outcome, elapsed time.Duration) {}

// CloudWatch publishes one count and one duration datum per outcome.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger}
}

func (c *CloudWatch) JobOutcome(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	dims := []cwtypes.Dimension{{Name: awsString("Outcome"), Value: awsString(string(outcome))}}
	now := time.Now()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &c.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString("JobOutcome"),
				Dimensions: dims,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      awsFloat(1),
			},
			{
				MetricName: awsString("JobDuration"),
				Dimensions: dims,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitMilliseconds,
				Value:      awsFloat(float64(elapsed.Milliseconds())),
			},
		},
	})
	if err != nil {
		c.logger.Warn("put metric data failed", zap.String("outcome", string(outcome)), zap.Error(err))
	}
}

func awsString(s string) *string { return &s }

func awsFloat(f float64) *float64 { return &f }
