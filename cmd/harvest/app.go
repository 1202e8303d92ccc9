package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tg-harvest/internal/console"
	"tg-harvest/internal/driver/telegram"
	"tg-harvest/internal/orchestrator"
	"tg-harvest/internal/scheduler"
	"tg-harvest/internal/storage"

	"github.com/google/uuid"
)

const (
	envConfigFile           = "HARVEST_CONFIG_FILE"
	defaultConfigFilePath   = "data/config.json"
	alternateConfigFilePath = "config/harvest.json"
	defaultRetryDelay       = 2 * time.Second
	referencePrompt         = "Enter your Telegram link: "
	logFormatJSON           = "json"
	logFormatText           = "text"
)

type appConfig struct {
	logLevel  slog.Level
	logFormat string

	maxRetries int
	threads    int
	retryDelay time.Duration
	outputDir  string

	telegram telegram.Config
}

type fileConfig struct {
	LogLevel   string `json:"log_level"`
	LogFormat  string `json:"log_format"`
	MaxRetries *int   `json:"max_retries"`
	Threads    *int   `json:"threads"`
	RetryDelay string `json:"retry_delay"`
	OutputDir  string `json:"output_dir"`
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg).With("run_id", uuid.NewString())

	layout, err := storage.NewLayout(cfg.outputDir, time.Now())
	if err != nil {
		return fmt.Errorf("new output layout: %w", err)
	}
	if err := layout.Prepare(); err != nil {
		return err
	}
	logger.Info("run directory created", "path", layout.RunDir())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdin := console.NewLineReader(os.Stdin)
	reference, err := readReference(ctx, os.Args[1:], stdin, os.Stdout)
	if err != nil {
		if ctx.Err() != nil {
			logger.Error("run interrupted by user", "state", orchestrator.StateStart)
			return fmt.Errorf("run interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("read reference: %w", err)
	}

	session, err := telegram.NewSession(cfg.telegram, logger, telegram.WithPromptIO(stdin, os.Stdout))
	if err != nil {
		return fmt.Errorf("new telegram session: %w", err)
	}

	harvester, err := orchestrator.New(
		layout,
		cfg.threads,
		cfg.maxRetries,
		orchestrator.WithLogger(logger),
		orchestrator.WithSchedulerOptions(scheduler.WithRetryDelay(cfg.retryDelay)),
	)
	if err != nil {
		return fmt.Errorf("new orchestrator: %w", err)
	}

	report, err := harvester.Run(ctx, session, reference)
	if ctx.Err() != nil {
		logger.Error("run interrupted by user", "state", report.State)
		return fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	if err != nil {
		return err
	}

	logger.Info("run finished",
		"state", report.State,
		"path", report.Path,
		"outcome", report.Outcome,
		"folder", report.Folder,
	)

	return nil
}

// readReference takes the first CLI argument, otherwise prompts on in.
// An exhausted stdin yields an empty reference.
func readReference(ctx context.Context, args []string, in *console.LineReader, out io.Writer) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	if in == nil {
		return "", fmt.Errorf("nil input reader")
	}

	if _, err := fmt.Fprint(out, referencePrompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := in.ReadLine(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	return strings.TrimSpace(line), nil
}

func newLogger(w io.Writer, cfg appConfig) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.logLevel}
	if cfg.logFormat == logFormatText {
		return slog.New(slog.NewTextHandler(w, options))
	}

	return slog.New(slog.NewJSONHandler(w, options))
}

func loadConfig() (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel:   slog.LevelInfo,
		logFormat:  logFormatJSON,
		retryDelay: defaultRetryDelay,
		outputDir:  storage.DefaultRoot,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}
	if rawFormat := strings.ToLower(strings.TrimSpace(parsed.LogFormat)); rawFormat != "" {
		if rawFormat != logFormatJSON && rawFormat != logFormatText {
			return fmt.Errorf("parse log_format: unsupported format %q", parsed.LogFormat)
		}
		cfg.logFormat = rawFormat
	}

	if parsed.MaxRetries == nil {
		return fmt.Errorf("parse max_retries: required")
	}
	if *parsed.MaxRetries < 0 {
		return fmt.Errorf("parse max_retries: must be >= 0")
	}
	cfg.maxRetries = *parsed.MaxRetries

	if parsed.Threads == nil {
		return fmt.Errorf("parse threads: required")
	}
	if *parsed.Threads < 1 {
		return fmt.Errorf("parse threads: must be >= 1")
	}
	cfg.threads = *parsed.Threads

	if rawDelay := strings.TrimSpace(parsed.RetryDelay); rawDelay != "" {
		delay, err := time.ParseDuration(rawDelay)
		if err != nil {
			return fmt.Errorf("parse retry_delay: %w", err)
		}
		if delay <= 0 {
			return fmt.Errorf("parse retry_delay: must be > 0")
		}
		cfg.retryDelay = delay
	}
	if outputDir := strings.TrimSpace(parsed.OutputDir); outputDir != "" {
		cfg.outputDir = outputDir
	}

	telegramCfg, err := telegram.ParseConfig(data)
	if err != nil {
		return fmt.Errorf("parse telegram config: %w", err)
	}
	telegramCfg.Debug = cfg.logLevel == slog.LevelDebug
	cfg.telegram = telegramCfg

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
