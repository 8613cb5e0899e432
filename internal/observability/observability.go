package observability

import (
	"os"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/dmart-io/ingestd/internal/config"
)

// NewLogger builds the process logger. Console output in dev, JSON
// elsewhere so the collector downstream can parse our own logs too.
func NewLogger(cfg *config.ObservabilityConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Environment == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}

// NewApp builds the New Relic application, or nil when APM is disabled.
func NewApp(cfg *config.ObservabilityConfig) (*newrelic.Application, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	return newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.ServiceName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
}
