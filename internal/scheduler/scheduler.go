package scheduler

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tg-harvest/pkg/harvest"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
)

// Outcome is the terminal result of one download task.
type Outcome struct {
	MessageID int
	Folder    string
	// Path is the written file on success.
	Path string
	// Attempts counts transfer attempts, including the successful one.
	Attempts int
	// Err is the last attempt failure; nil on success.
	Err error
}

// Succeeded reports whether the task stored its attachment.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Path != ""
}

// Summary aggregates terminal outcomes of all tasks run by one scheduler.
type Summary struct {
	Tasks     int
	Succeeded int
	Failed    int
}

// Scheduler runs download tasks under a fixed concurrency gate with bounded
// fixed-delay retry.
//
// Every attempt acquires one gate unit and releases it before any backoff wait,
// so a failing task never holds a slot while sleeping.
type Scheduler struct {
	cfg        config
	transfer   harvest.Transfer
	gate       *semaphore.Weighted
	threads    int
	maxRetries int

	wg        sync.WaitGroup
	succeeded atomic.Int64
	failed    atomic.Int64
}

// New creates a scheduler bounded to threads concurrent transfers.
func New(transfer harvest.Transfer, threads int, maxRetries int, options ...Option) (*Scheduler, error) {
	if transfer == nil {
		return nil, fmt.Errorf("new scheduler: nil transfer")
	}
	if threads < 1 {
		return nil, fmt.Errorf("new scheduler: threads must be >= 1, got %d", threads)
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("new scheduler: max retries must be >= 0, got %d", maxRetries)
	}

	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	return &Scheduler{
		cfg:        cfg,
		transfer:   transfer,
		gate:       semaphore.NewWeighted(int64(threads)),
		threads:    threads,
		maxRetries: maxRetries,
	}, nil
}

// Threads returns the gate capacity.
func (s *Scheduler) Threads() int {
	return s.threads
}

// DownloadOne drives one task to a terminal outcome.
//
// It never returns an error: failures are reported through the outcome, the
// logger and the outcome handler.
func (s *Scheduler) DownloadOne(ctx context.Context, task harvest.DownloadTask) Outcome {
	logger := s.cfg.logger.With("message_id", task.Message.ID, "folder", task.Folder)

	outcome := Outcome{
		MessageID: task.Message.ID,
		Folder:    task.Folder,
	}

	operation := func() error {
		outcome.Attempts++
		path, err := s.attempt(ctx, task)
		if err != nil {
			return err
		}
		outcome.Path = path
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "media download attempt failed; retrying",
			"attempt", outcome.Attempts,
			"max_retries", s.maxRetries,
			"retry_in", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.retryDelay), uint64(s.maxRetries)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		outcome.Path = ""
		outcome.Err = err
	}

	if outcome.Succeeded() {
		s.succeeded.Add(1)
		logger.InfoContext(ctx, "media downloaded", "path", outcome.Path, "attempts", outcome.Attempts)
	} else {
		s.failed.Add(1)
		logger.ErrorContext(ctx, "media download failed",
			"attempts", outcome.Attempts,
			"max_retries", s.maxRetries,
			"error", outcome.Err,
		)
	}
	s.cfg.onOutcome(ctx, outcome)

	return outcome
}

// attempt performs one gated transfer. The gate unit is released before return.
func (s *Scheduler) attempt(ctx context.Context, task harvest.DownloadTask) (string, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return "", backoff.Permanent(fmt.Errorf("acquire download slot: %w", err))
	}
	defer s.gate.Release(1)

	var path string
	err := runSafely(fmt.Sprintf("transfer message %d", task.Message.ID), func() error {
		fetched, err := s.transfer.Fetch(ctx, task.Message, task.Folder)
		if err != nil {
			return err
		}
		if strings.TrimSpace(fetched) == "" {
			return harvest.ErrEmptyTransferResult
		}
		path = fetched
		return nil
	})
	if err != nil {
		return "", err
	}

	return path, nil
}

// Submit starts one task asynchronously. Wait joins every submitted task.
func (s *Scheduler) Submit(ctx context.Context, task harvest.DownloadTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.DownloadOne(ctx, task)
	}()
}

// Wait blocks until every submitted task reached a terminal outcome.
func (s *Scheduler) Wait() Summary {
	s.wg.Wait()

	return s.Summary()
}

// Summary returns outcome counters for tasks that already terminated.
func (s *Scheduler) Summary() Summary {
	return Summary{
		Tasks:     int(s.succeeded.Load() + s.failed.Load()),
		Succeeded: int(s.succeeded.Load()),
		Failed:    int(s.failed.Load()),
	}
}

// DownloadMany submits every task from tasks as it is produced and joins them all.
func (s *Scheduler) DownloadMany(ctx context.Context, tasks iter.Seq[harvest.DownloadTask]) Summary {
	if tasks != nil {
		for task := range tasks {
			s.Submit(ctx, task)
		}
	}

	return s.Wait()
}
