// Package app builds the connection handles and backends a binary needs from
// its configuration and closes them on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"meetsync/internal/aws"
	"meetsync/internal/cache"
	rediscache "meetsync/internal/cache/redis"
	"meetsync/internal/config"
	"meetsync/internal/kafka"
	"meetsync/internal/metrics"
	"meetsync/internal/postgres"
	"meetsync/internal/queue"
	memqueue "meetsync/internal/queue/memory"
	"meetsync/internal/retry"
	"meetsync/internal/store"
	"meetsync/internal/store/dynamo"
	memstore "meetsync/internal/store/memory"
	pgstore "meetsync/internal/store/postgres"
)

// ConnectTimeout bounds each startup connectivity check.
const ConnectTimeout = 2 * time.Second

type Deps struct {
	cfg    config.Config
	logger *zap.Logger

	mu      sync.Mutex
	closers []closer
	redis   *goredis.Client
	aws     *aws.AWSClients
	memJobs *memqueue.Broker
	memDLQ  *memqueue.Broker
}

type closer struct {
	name string
	fn   func() error
}

func New(cfg config.Config, logger *zap.Logger) *Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deps{cfg: cfg, logger: logger}
}

func (d *Deps) onClose(name string, fn func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closers = append(d.closers, closer{name: name, fn: fn})
}

// Close releases everything in reverse order of creation.
func (d *Deps) Close() {
	d.mu.Lock()
	closers := d.closers
	d.closers = nil
	d.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			d.logger.Warn("close failed", zap.String("resource", closers[i].name), zap.Error(err))
		}
	}
}

// Redis returns the shared client, creating it on first use.
func (d *Deps) Redis() *goredis.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.redis == nil {
		d.redis = goredis.NewClient(&goredis.Options{
			Addr:     d.cfg.Redis.Addr,
			Password: d.cfg.Redis.Password,
			DB:       d.cfg.Redis.DB,
		})
		client := d.redis
		d.closers = append(d.closers, closer{name: "redis", fn: client.Close})
	}
	return d.redis
}

func (d *Deps) Cache() cache.Cache {
	return rediscache.New(d.Redis())
}

// AWS loads the SDK config once and returns clients built from it.
func (d *Deps) AWS(ctx context.Context) (*aws.AWSClients, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.aws != nil {
		return d.aws, nil
	}
	sdkCfg, err := aws.LoadAWSConfig(ctx, d.cfg.AWS)
	if err != nil {
		return nil, err
	}
	d.aws = aws.NewAWSClients(sdkCfg)
	return d.aws, nil
}

// Store opens the durable store named by store.driver.
func (d *Deps) Store(ctx context.Context) (store.Store, error) {
	switch d.cfg.Store.Driver {
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StorePostgres:
		pool, err := postgres.Open(ctx, d.cfg.Postgres)
		if err != nil {
			return nil, err
		}
		d.onClose("postgres", func() error { pool.Close(); return nil })
		st := pgstore.New(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreDynamo:
		clients, err := d.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return dynamo.New(clients.DynamoDB, d.cfg.Store.DynamoTable), nil
	default:
		return nil, fmt.Errorf("store.driver %q is not supported", d.cfg.Store.Driver)
	}
}

// Jobs returns the producer for the jobs queue.
func (d *Deps) Jobs(ctx context.Context) (queue.Producer, error) {
	switch d.cfg.Queue.Driver {
	case config.QueueMemory:
		return d.memoryJobs(), nil
	case config.QueueKafka:
		return d.kafkaProducer(d.cfg.Kafka.JobsTopic)
	case config.QueueSQS:
		clients, err := d.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return aws.NewPublisher(clients.SQS, d.cfg.Queue.SQSURL), nil
	default:
		return nil, fmt.Errorf("queue.driver %q is not supported", d.cfg.Queue.Driver)
	}
}

// DeadLetter returns the producer failed jobs are parked on.
func (d *Deps) DeadLetter(ctx context.Context) (queue.Producer, error) {
	switch d.cfg.Queue.Driver {
	case config.QueueMemory:
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.memDLQ == nil {
			d.memDLQ = memqueue.New()
		}
		return d.memDLQ, nil
	case config.QueueKafka:
		return d.kafkaProducer(d.cfg.Kafka.DLQTopic)
	case config.QueueSQS:
		if d.cfg.Queue.DLQURL == "" {
			return nil, errors.New("queue.sqs_dlq_url is required for dead-lettering")
		}
		clients, err := d.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return aws.NewPublisher(clients.SQS, d.cfg.Queue.DLQURL), nil
	default:
		return nil, fmt.Errorf("queue.driver %q is not supported", d.cfg.Queue.Driver)
	}
}

// Consumer returns the jobs queue consumer. Kafka retries go through the
// redis retry schedule.
func (d *Deps) Consumer(ctx context.Context) (queue.Consumer, error) {
	switch d.cfg.Queue.Driver {
	case config.QueueMemory:
		return d.memoryJobs(), nil
	case config.QueueKafka:
		c, err := kafka.NewKafkaGoConsumer(d.cfg.Kafka, d.cfg.Worker.GroupID, retry.NewScheduler(d.Redis()))
		if err != nil {
			return nil, err
		}
		d.onClose("kafka consumer", c.Close)
		return c, nil
	case config.QueueSQS:
		clients, err := d.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return aws.NewConsumer(clients.SQS, d.cfg.Queue.SQSURL)
	default:
		return nil, fmt.Errorf("queue.driver %q is not supported", d.cfg.Queue.Driver)
	}
}

// Metrics returns a CloudWatch recorder when metrics.namespace is set.
func (d *Deps) Metrics(ctx context.Context) metrics.Recorder {
	if d.cfg.Metrics.Namespace == "" {
		return metrics.Noop{}
	}
	clients, err := d.AWS(ctx)
	if err != nil {
		d.logger.Warn("metrics disabled", zap.Error(err))
		return metrics.Noop{}
	}
	return metrics.NewCloudWatch(clients.CloudWatch, d.cfg.Metrics.Namespace, d.logger)
}

// CheckConnectivity pings each configured backend and logs failures. The
// processes start anyway and report through /healthz or retries.
func (d *Deps) CheckConnectivity(ctx context.Context) {
	check := func(name string, fn func(context.Context) error) {
		cctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		defer cancel()
		if err := fn(cctx); err != nil {
			d.logger.Warn("connectivity check failed", zap.String("dependency", name), zap.Error(err))
		}
	}

	if d.cfg.Redis.Addr != "" {
		check("redis", func(ctx context.Context) error { return d.Redis().Ping(ctx).Err() })
	}
	if d.cfg.Queue.Driver == config.QueueKafka {
		check("kafka", func(ctx context.Context) error { return kafka.CheckConnectivity(ctx, d.cfg.Kafka.Brokers) })
	}
	if d.cfg.Store.Driver == config.StorePostgres {
		check("postgres", func(ctx context.Context) error { return postgres.CheckConnectivity(ctx, d.cfg.Postgres) })
	}
}

func (d *Deps) memoryJobs() *memqueue.Broker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memJobs == nil {
		d.memJobs = memqueue.New()
	}
	return d.memJobs
}

func (d *Deps) kafkaProducer(topic string) (queue.Producer, error) {
	p, err := kafka.NewKafkaGoProducer(d.cfg.Kafka, topic)
	if err != nil {
		return nil, err
	}
	d.onClose("kafka producer "+topic, p.Close)
	return p, nil
}
