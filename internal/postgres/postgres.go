package postgres

import (
	"fmt"
	"strings"
)

type Config struct {
	DSN      string `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxConns int32  `yaml:"max_conns"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("postgres.max_conns must not be negative")
	}
	return nil
}
