package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tg-harvest/internal/console"
	"tg-harvest/pkg/harvest"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"go.uber.org/zap"
)

const (
	defaultSessionFile      = ".cache/telegram/session.json"
	defaultAuthTimeout      = 3 * time.Minute
	defaultHistoryBatchSize = 100
	maxHistoryBatchSize     = 100
)

// Config holds the Telegram session settings.
type Config struct {
	AppID       int
	AppHash     string
	SessionFile string
	Phone       string
	Password    string
	Code        string
	AuthTimeout time.Duration
	// HistoryBatchSize bounds how many messages one history page requests.
	HistoryBatchSize int
	// Debug enables gotd's internal zap logger.
	Debug bool
}

type runtimeConfig struct {
	AppID            int    `json:"api_id"`
	AppHash          string `json:"api_hash"`
	SessionFile      string `json:"session_file"`
	Phone            string `json:"phone"`
	Password         string `json:"password"`
	Code             string `json:"code"`
	AuthTimeout      string `json:"auth_timeout"`
	HistoryBatchSize int    `json:"history_batch_size"`
}

// ParseConfig reads the Telegram settings from the application config payload.
//
// Unrelated keys are ignored.
func ParseConfig(raw []byte) (Config, error) {
	if len(raw) == 0 {
		return Config{}, fmt.Errorf("missing config")
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := Config{
		AppID:            parsed.AppID,
		AppHash:          strings.TrimSpace(parsed.AppHash),
		SessionFile:      strings.TrimSpace(parsed.SessionFile),
		Phone:            strings.TrimSpace(parsed.Phone),
		Password:         strings.TrimSpace(parsed.Password),
		Code:             strings.TrimSpace(parsed.Code),
		AuthTimeout:      defaultAuthTimeout,
		HistoryBatchSize: parsed.HistoryBatchSize,
	}
	if timeout := strings.TrimSpace(parsed.AuthTimeout); timeout != "" {
		parsedTimeout, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse auth_timeout: %w", err)
		}
		if parsedTimeout <= 0 {
			return Config{}, fmt.Errorf("parse auth_timeout: must be > 0")
		}
		cfg.AuthTimeout = parsedTimeout
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.SessionFile == "" {
		c.SessionFile = defaultSessionFile
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaultAuthTimeout
	}
	if c.HistoryBatchSize <= 0 {
		c.HistoryBatchSize = defaultHistoryBatchSize
	}

	return c
}

// Validate reports missing credentials and out-of-range limits.
func (c Config) Validate() error {
	if c.AppID <= 0 {
		return fmt.Errorf("api_id must be > 0")
	}
	if strings.TrimSpace(c.AppHash) == "" {
		return fmt.Errorf("api_hash is required")
	}
	if c.HistoryBatchSize > maxHistoryBatchSize {
		return fmt.Errorf("history_batch_size must be <= %d, got %d", maxHistoryBatchSize, c.HistoryBatchSize)
	}

	return nil
}

func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("empty session file path")
	}

	absPath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	sessionDir := filepath.Dir(absPath)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", sessionDir, err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

func newGotdLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("new zap development logger: %w", err)
	}

	return logger, nil
}

// Session is one gotd client bound to a persistent session file.
type Session struct {
	cfg        Config
	logger     *slog.Logger
	client     *gotdtelegram.Client
	gotdLogger *zap.Logger
	prompter   *prompter
}

// SessionOption mutates session construction.
type SessionOption func(*Session)

// WithPromptIO routes interactive sign-in prompts through in and out instead of stdio.
func WithPromptIO(in *console.LineReader, out io.Writer) SessionOption {
	return func(s *Session) {
		if in != nil && out != nil {
			s.prompter = newPrompter(in, out, func() bool { return true })
		}
	}
}

// NewSession builds a gotd client from cfg. No network activity happens until Run.
func NewSession(cfg Config, logger *slog.Logger, options ...SessionOption) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new telegram session: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessionStorage, err := newGotdSessionStorage(cfg.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("new gotd session storage: %w", err)
	}
	gotdLogger, err := newGotdLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	client := gotdtelegram.NewClient(cfg.AppID, cfg.AppHash, gotdtelegram.Options{
		SessionStorage: sessionStorage,
		Logger:         gotdLogger,
	})

	created := &Session{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		gotdLogger: gotdLogger,
		prompter:   newStdioPrompter(),
	}
	for _, option := range options {
		option(created)
	}

	return created, nil
}

// Run connects, signs in when the stored session is not authorized, and runs
// fn with the authenticated platform. Sign-in failures wrap harvest.ErrAuthentication.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, platform harvest.Platform) error) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("run telegram session: nil client")
	}
	if fn == nil {
		return fmt.Errorf("run telegram session: nil run callback")
	}
	defer func() {
		_ = s.gotdLogger.Sync()
	}()

	if err := s.client.Run(ctx, func(runCtx context.Context) error {
		if err := authenticateGotdClient(runCtx, s.logger, s.client.Auth(), s.cfg, s.prompter); err != nil {
			return fmt.Errorf("%w: %w", harvest.ErrAuthentication, err)
		}

		api := s.client.API()
		files := downloader.NewDownloader()
		platform, err := NewPlatform(api, downloaderFetcher(files, api),
			WithPlatformLogger(s.logger),
			WithHistoryBatchSize(s.cfg.HistoryBatchSize),
		)
		if err != nil {
			return fmt.Errorf("new telegram platform: %w", err)
		}
		if err := fn(runCtx, platform); err != nil {
			return fmt.Errorf("run telegram session callback: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("run telegram session: %w", err)
	}

	return nil
}
