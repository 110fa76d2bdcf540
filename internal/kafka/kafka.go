package kafka

import (
	"fmt"
	"strings"
)

type Config struct {
	Brokers   []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	JobsTopic string   `yaml:"jobs_topic" env:"QUEUE_NAME"`
	DLQTopic  string   `yaml:"dlq_topic"`
	ClientID  string   `yaml:"client_id"`
}

func (c Config) ValidateJobs() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if strings.TrimSpace(c.JobsTopic) == "" {
		return fmt.Errorf("kafka.jobs_topic is required")
	}
	return nil
}
