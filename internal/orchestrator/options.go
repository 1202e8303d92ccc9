package orchestrator

import (
	"log/slog"

	"tg-harvest/internal/scheduler"
)

// config stores resolved orchestrator settings after option application.
type config struct {
	logger           *slog.Logger
	schedulerOptions []scheduler.Option
}

// Option mutates orchestrator construction configuration.
type Option func(*config)

// WithLogger configures the logger used for user-facing run reports.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSchedulerOptions appends options applied to every per-run download scheduler.
func WithSchedulerOptions(options ...scheduler.Option) Option {
	return func(cfg *config) {
		cfg.schedulerOptions = append(cfg.schedulerOptions, options...)
	}
}
