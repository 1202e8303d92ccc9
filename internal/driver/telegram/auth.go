package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"tg-harvest/internal/console"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

const (
	phonePrompt    = "Enter your Telegram phone number (in international format, e.g., +123456789): "
	codePrompt     = "Enter the code you received: "
	passwordPrompt = "Two-step verification enabled. Please enter your password: "
)

var errSignUpUnsupported = errors.New("account sign up is not supported; register the phone number with an official client first")

// gotdAuthClient is the subset of the gotd auth client used for sign-in.
type gotdAuthClient interface {
	Status(ctx context.Context) (*auth.Status, error)
	IfNecessary(ctx context.Context, flow auth.Flow) error
}

func authenticateGotdClient(
	ctx context.Context,
	logger *slog.Logger,
	client gotdAuthClient,
	cfg Config,
	prompts *prompter,
) error {
	if client == nil {
		return fmt.Errorf("authenticate gotd client: nil client")
	}
	if logger == nil {
		logger = slog.Default()
	}

	authCtx := ctx
	cancel := func() {}
	if cfg.AuthTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(ctx, cfg.AuthTimeout)
		authCtx = timeoutCtx
		cancel = timeoutCancel
	}
	defer cancel()

	status, err := client.Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status != nil && status.Authorized {
		logger.Info("telegram session restored from local storage", "session_file", cfg.SessionFile)
		return nil
	}

	flow := auth.NewFlow(promptAuthenticator{cfg: cfg, prompts: prompts}, auth.SendCodeOptions{})
	if err := client.IfNecessary(authCtx, flow); err != nil {
		return fmt.Errorf("authenticate user: %w", err)
	}
	logger.Info("telegram authorized with user flow", "session_file", cfg.SessionFile)

	return nil
}

// promptAuthenticator answers the gotd user flow from config, falling back to
// interactive prompts for any value left empty.
type promptAuthenticator struct {
	cfg     Config
	prompts *prompter
}

func (a promptAuthenticator) Phone(ctx context.Context) (string, error) {
	return a.resolve(ctx, a.cfg.Phone, "phone", phonePrompt)
}

func (a promptAuthenticator) Password(ctx context.Context) (string, error) {
	return a.resolve(ctx, a.cfg.Password, "password", passwordPrompt)
}

func (a promptAuthenticator) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.resolve(ctx, a.cfg.Code, "code", codePrompt)
}

func (a promptAuthenticator) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return errSignUpUnsupported
}

func (a promptAuthenticator) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errSignUpUnsupported
}

func (a promptAuthenticator) resolve(ctx context.Context, configured string, key string, prompt string) (string, error) {
	if value := strings.TrimSpace(configured); value != "" {
		return value, nil
	}
	if a.prompts == nil {
		return "", fmt.Errorf("%s is empty and no prompt is available", key)
	}

	value, err := a.prompts.ask(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", key, err)
	}

	return value, nil
}

// prompter reads single trimmed lines from an interactive input.
type prompter struct {
	mu          sync.Mutex
	in          *console.LineReader
	out         io.Writer
	interactive func() bool
}

func newPrompter(in *console.LineReader, out io.Writer, interactive func() bool) *prompter {
	return &prompter{in: in, out: out, interactive: interactive}
}

func newStdioPrompter() *prompter {
	return newPrompter(console.NewLineReader(os.Stdin), os.Stdout, stdinIsInteractive)
}

func (p *prompter) ask(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interactive != nil && !p.interactive() {
		return "", fmt.Errorf("stdin is not interactive")
	}

	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", fmt.Errorf("empty answer")
	}

	return answer, nil
}

func stdinIsInteractive() bool {
	stdinInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	return stdinInfo.Mode()&os.ModeCharDevice != 0
}
