// Package logging builds the process logger and carries the request case id
// through context.
package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CaseHeader is the HTTP header that carries the correlation token.
const CaseHeader = "Case-ID"

type Config struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// New returns a JSON production logger, or a console development logger when
// cfg.Development is set.
func New(service string, cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("service", service)), nil
}

type caseIDKey struct{}

func ContextWithCaseID(ctx context.Context, caseID string) context.Context {
	return context.WithValue(ctx, caseIDKey{}, caseID)
}

func CaseIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(caseIDKey{}).(string)
	return id
}

// FromContext returns base annotated with the case id found in ctx, if any.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	if id := CaseIDFromContext(ctx); id != "" {
		return base.With(zap.String("case_id", id))
	}
	return base
}
