package aws

import (
	"context"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultRegion = "us-east-1"

// Config selects the region and, for local stacks, an endpoint override.
type Config struct {
	Region   string `yaml:"region" env:"AWS_REGION"`
	Endpoint string `yaml:"endpoint" env:"AWS_ENDPOINT_URL"`
}

func LoadAWSConfig(ctx context.Context, cfg Config) (sdkaws.Config, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return awsCfg, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		awsCfg.BaseEndpoint = sdkaws.String(endpoint)
	}
	return awsCfg, nil
}
