package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordLoadOutcome counts configuration loads. Successful loads also carry
// the backends the process is about to wire.
func recordLoadOutcome(ctx context.Context, cfg *Config, env string, err error) {
	loadMetricsOnce.Do(func() {
		counter, cerr := otel.Meter(defaultServiceName).Int64Counter("config.load.events")
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("env", envLabel(env)),
		attribute.String("error_class", loadErrorClass(err)),
	}
	if cfg != nil {
		attrs = append(attrs,
			attribute.String("db_driver", cfg.DBDriver),
			attribute.Bool("redis", cfg.RedisURL != ""),
			attribute.Bool("kafka", len(cfg.KafkaBrokers) > 0),
			attribute.String("dedupe_backend", cfg.ThreatDedupeBackend),
		)
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// envLabel bounds APP_ENV cardinality.
func envLabel(env string) string {
	switch v := strings.ToLower(strings.TrimSpace(env)); v {
	case "":
		return "unset"
	case "dev", "development":
		return "development"
	case "prod", "production":
		return "production"
	case "test", "staging":
		return v
	default:
		return "other"
	}
}

func loadErrorClass(err error) string {
	if err == nil {
		return "none"
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "read config file"), strings.HasPrefix(msg, "parse config file"):
		return "config_file"
	case strings.HasPrefix(msg, "parse "):
		return "env_parse"
	default:
		return "load"
	}
}
