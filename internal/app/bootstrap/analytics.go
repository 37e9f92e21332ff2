package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/wa-navigator/internal/analytics"
	appconfig "github.com/wolfman30/wa-navigator/internal/config"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

const (
	AnalyticsBackendNone     = "none"
	AnalyticsBackendDynamoDB = "dynamodb"
	AnalyticsBackendSQS      = "sqs"
)

// AWSConfigLoader resolves SDK configuration, typically mainconfig.LoadAWSConfig.
type AWSConfigLoader func(ctx context.Context, cfg *appconfig.Config) (aws.Config, error)

// BuildAnalyticsSink wires the optional analytics backend. A nil sink means
// analytics are disabled.
func BuildAnalyticsSink(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (analytics.Sink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.AnalyticsBackend))
	switch backend {
	case "", AnalyticsBackendNone:
		return nil, nil
	case AnalyticsBackendDynamoDB, AnalyticsBackendSQS:
	default:
		return nil, fmt.Errorf("bootstrap: unknown analytics backend %q", cfg.AnalyticsBackend)
	}
	if backend == AnalyticsBackendDynamoDB && strings.TrimSpace(cfg.AnalyticsTable) == "" {
		logger.Warn("analytics backend dynamodb selected but table empty; disabling")
		return nil, nil
	}
	if backend == AnalyticsBackendSQS && strings.TrimSpace(cfg.AnalyticsQueueURL) == "" {
		logger.Warn("analytics backend sqs selected but queue url empty; disabling")
		return nil, nil
	}
	if loadAWS == nil {
		return nil, fmt.Errorf("bootstrap: aws config loader is required for %s analytics", backend)
	}

	awsCfg, err := loadAWS(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	if backend == AnalyticsBackendDynamoDB {
		logger.Info("analytics enabled", "backend", backend, "table", cfg.AnalyticsTable)
		return analytics.NewDynamoSink(dynamodb.NewFromConfig(awsCfg), cfg.AnalyticsTable), nil
	}
	logger.Info("analytics enabled", "backend", backend, "queue_url", cfg.AnalyticsQueueURL)
	return analytics.NewSQSSink(sqs.NewFromConfig(awsCfg), cfg.AnalyticsQueueURL), nil
}

// BuildAnalyticsRecorder wraps sink in a Recorder; a nil sink yields a nil
// recorder, which is safe to call.
func BuildAnalyticsRecorder(sink analytics.Sink, cfg *appconfig.Config, opts ...analytics.Option) *analytics.Recorder {
	if sink == nil {
		return nil
	}
	if cfg != nil && cfg.AnalyticsTimeout > 0 {
		opts = append(opts, analytics.WithTimeout(cfg.AnalyticsTimeout))
	}
	return analytics.NewRecorder(sink, opts...)
}
