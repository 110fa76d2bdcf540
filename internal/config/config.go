package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	yaml "github.com/goccy/go-yaml"

	"meetsync/internal/aws"
	"meetsync/internal/dispatcher"
	"meetsync/internal/kafka"
	"meetsync/internal/logging"
	"meetsync/internal/postgres"
	"meetsync/internal/rediskeys"
	"meetsync/internal/worker"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "config/config.yaml"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamo   = "dynamo"

	QueueMemory = "memory"
	QueueKafka  = "kafka"
	QueueSQS    = "sqs"
)

type Config struct {
	API             APIConfig         `yaml:"api"`
	Worker          WorkerConfig      `yaml:"worker"`
	RetryDispatcher dispatcher.Config `yaml:"retry_dispatcher"`
	Redis           RedisConfig       `yaml:"redis"`
	Cache           CacheConfig       `yaml:"cache"`
	Store           StoreConfig       `yaml:"store"`
	Queue           QueueConfig       `yaml:"queue"`
	Kafka           kafka.Config      `yaml:"kafka"`
	Postgres        postgres.Config   `yaml:"postgres"`
	AWS             aws.Config        `yaml:"aws"`
	Log             logging.Config    `yaml:"log"`
	Suggest         SuggestConfig     `yaml:"suggest"`
	Metrics         MetricsConfig     `yaml:"metrics"`
}

type APIConfig struct {
	Addr string `yaml:"addr" env:"API_ADDR"`
}

type WorkerConfig struct {
	worker.Config `yaml:",inline"`
	GroupID       string `yaml:"group_id" env:"WORKER_GROUP_ID"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" env:"TTL_SECONDS"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type StoreConfig struct {
	Driver      string `yaml:"driver" env:"STORE_DRIVER"`
	DynamoTable string `yaml:"dynamo_table" env:"DYNAMO_TABLE"`
}

type QueueConfig struct {
	Driver string `yaml:"driver" env:"QUEUE_DRIVER"`
	// Name is reported to callers of POST /tasks.
	Name   string `yaml:"name" env:"QUEUE_NAME"`
	SQSURL string `yaml:"sqs_url" env:"SQS_QUEUE_URL"`
	DLQURL string `yaml:"sqs_dlq_url" env:"SQS_DLQ_URL"`
}

type SuggestConfig struct {
	BaseURL string        `yaml:"base_url" env:"SUGGEST_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"SUGGEST_TIMEOUT"`
}

type MetricsConfig struct {
	// Namespace enables CloudWatch metrics when set.
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE"`
}

// Load reads the YAML file at path, applies defaults and then environment
// overrides.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadFromEnv loads CONFIG_PATH, or DefaultPath. A missing default file is not
// an error; the environment alone can configure a process.
func LoadFromEnv() (Config, error) {
	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return Parse(nil)
		}
		path = DefaultPath
	}
	return Load(path)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.API.Addr) == "" {
		c.API.Addr = ":8080"
	}
	if strings.TrimSpace(c.Worker.GroupID) == "" {
		c.Worker.GroupID = "meetsync-worker"
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = worker.DefaultMaxAttempts
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = worker.DefaultJobTimeout
	}
	if c.RetryDispatcher.PollInterval <= 0 {
		c.RetryDispatcher.PollInterval = 1 * time.Second
	}
	if c.RetryDispatcher.Batch <= 0 {
		c.RetryDispatcher.Batch = 100
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = int(rediskeys.DefaultCacheTTL / time.Second)
	}
	if strings.TrimSpace(c.Store.Driver) == "" {
		c.Store.Driver = StorePostgres
	}
	if strings.TrimSpace(c.Queue.Driver) == "" {
		c.Queue.Driver = QueueKafka
	}
	if strings.TrimSpace(c.Queue.Name) == "" {
		c.Queue.Name = "meeting_jobs"
	}
	if strings.TrimSpace(c.Kafka.JobsTopic) == "" {
		c.Kafka.JobsTopic = c.Queue.Name
	}
	if strings.TrimSpace(c.Kafka.DLQTopic) == "" {
		c.Kafka.DLQTopic = c.Kafka.JobsTopic + ".dlq"
	}
	if c.Suggest.Timeout <= 0 {
		c.Suggest.Timeout = 15 * time.Second
	}
}

func (c Config) ValidateForAPI() error {
	if strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("api.addr is required")
	}
	if err := validateRedis(c.Redis); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateQueue()
}

func (c Config) ValidateForWorker() error {
	if strings.TrimSpace(c.Worker.GroupID) == "" {
		return fmt.Errorf("worker.group_id is required")
	}
	if err := validateRedis(c.Redis); err != nil {
		return err
	}
	if err := c.validateSuggest(); err != nil {
		return err
	}
	if c.Queue.Driver == QueueMemory {
		return fmt.Errorf("queue.driver %q cannot be shared with a separate worker process", QueueMemory)
	}
	return c.validateQueue()
}

func (c Config) ValidateForRetryDispatcher() error {
	if c.RetryDispatcher.PollInterval <= 0 {
		return fmt.Errorf("retry_dispatcher.poll_interval is required")
	}
	if err := validateRedis(c.Redis); err != nil {
		return err
	}
	return c.Kafka.ValidateJobs()
}

// ValidateForLambda checks what the SQS-triggered worker needs; the event
// source mapping owns the queue.
func (c Config) ValidateForLambda() error {
	if err := validateRedis(c.Redis); err != nil {
		return err
	}
	return c.validateSuggest()
}

func (c Config) validateStore() error {
	switch c.Store.Driver {
	case StoreMemory:
		return nil
	case StorePostgres:
		return c.Postgres.Validate()
	case StoreDynamo:
		if strings.TrimSpace(c.Store.DynamoTable) == "" {
			return fmt.Errorf("store.dynamo_table is required")
		}
		return nil
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
}

func (c Config) validateQueue() error {
	switch c.Queue.Driver {
	case QueueMemory:
		return nil
	case QueueKafka:
		return c.Kafka.ValidateJobs()
	case QueueSQS:
		if strings.TrimSpace(c.Queue.SQSURL) == "" {
			return fmt.Errorf("queue.sqs_url is required")
		}
		return nil
	default:
		return fmt.Errorf("queue.driver %q is not supported", c.Queue.Driver)
	}
}

func (c Config) validateSuggest() error {
	if strings.TrimSpace(c.Suggest.BaseURL) == "" {
		return fmt.Errorf("suggest.base_url is required")
	}
	return nil
}

func validateRedis(cfg RedisConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("redis.addr is required")
	}
	return nil
}
