package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	segkafka "github.com/segmentio/kafka-go"
)

type dialFunc func(ctx context.Context, network, address string) (io.Closer, error)

// CheckConnectivity succeeds as soon as one broker accepts a connection.
func CheckConnectivity(ctx context.Context, brokers []string) error {
	return checkConnectivity(ctx, brokers, defaultDialer())
}

func checkConnectivity(ctx context.Context, brokers []string, dial dialFunc) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	var errs []error
	for _, addr := range brokers {
		conn, err := dial(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		return conn.Close()
	}
	return errors.Join(errs...)
}

func defaultDialer() dialFunc {
	dialer := &segkafka.Dialer{Timeout: 2 * time.Second}
	return func(ctx context.Context, network, address string) (io.Closer, error) {
		return dialer.DialContext(ctx, network, address)
	}
}
