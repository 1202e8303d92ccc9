package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const defaultRetryDelay = 2 * time.Second

// config stores resolved scheduler settings after option application.
type config struct {
	retryDelay time.Duration
	logger     *slog.Logger
	onOutcome  func(context.Context, Outcome)
}

// Option mutates scheduler construction configuration.
type Option func(*config)

func defaultConfig() config {
	return config{
		retryDelay: defaultRetryDelay,
		logger:     slog.Default(),
		onOutcome:  func(context.Context, Outcome) {},
	}
}

// WithRetryDelay configures the fixed wait between failed attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(cfg *config) {
		if delay >= 0 {
			cfg.retryDelay = delay
		}
	}
}

// WithLogger configures the logger used for per-task reports.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithOutcomeHandler configures a callback invoked once per terminal task outcome.
func WithOutcomeHandler(handler func(context.Context, Outcome)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onOutcome = handler
		}
	}
}
