package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tg-harvest/internal/scheduler"
	"tg-harvest/pkg/harvest"
)

// Orchestrator runs one reference through classification, resolution,
// enumeration and download.
type Orchestrator struct {
	cfg        config
	storage    harvest.Storage
	threads    int
	maxRetries int
}

// New creates an orchestrator writing into storage with the given download limits.
func New(storage harvest.Storage, threads int, maxRetries int, options ...Option) (*Orchestrator, error) {
	if storage == nil {
		return nil, fmt.Errorf("new orchestrator: nil storage")
	}
	if threads < 1 {
		return nil, fmt.Errorf("new orchestrator: threads must be >= 1, got %d", threads)
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("new orchestrator: max retries must be >= 0, got %d", maxRetries)
	}

	cfg := config{logger: slog.Default()}
	for _, option := range options {
		option(&cfg)
	}

	return &Orchestrator{
		cfg:        cfg,
		storage:    storage,
		threads:    threads,
		maxRetries: maxRetries,
	}, nil
}

// Run authenticates through session and handles input exactly once.
//
// Only session failures (authentication, connection, interruption) are
// returned as errors. Every other failure ends the run in StateDone with the
// cause recorded in the report.
func (o *Orchestrator) Run(ctx context.Context, session harvest.Session, input string) (Report, error) {
	if session == nil {
		return Report{State: StateStart}, fmt.Errorf("run orchestrator: nil session")
	}

	report := Report{State: StateStart}
	err := session.Run(ctx, func(runCtx context.Context, platform harvest.Platform) error {
		if platform == nil {
			return fmt.Errorf("run orchestrator: nil platform")
		}
		report.State = StateAuthenticated
		report = o.handle(runCtx, platform, input)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("run session: %w", err)
	}

	return report, nil
}

// handle classifies input, picks the single or bulk path and drives it to StateDone.
func (o *Orchestrator) handle(ctx context.Context, platform harvest.Platform, input string) Report {
	reference, err := harvest.Classify(input)
	if err != nil {
		o.cfg.logger.ErrorContext(ctx, "invalid telegram link format", "input", input, "error", err)
		return Report{State: StateDone, Outcome: OutcomeInvalidReference, Err: err}
	}

	if reference.IsSingle() {
		report := o.runSingle(ctx, platform, *reference.Message)
		report.Path = StateSinglePath
		report.State = StateDone
		return report
	}

	report := o.runBulk(ctx, platform, reference.Group)
	report.Path = StateBulkPath
	report.State = StateDone
	return report
}

func (o *Orchestrator) runSingle(ctx context.Context, platform harvest.Platform, reference harvest.MessageRef) Report {
	logger := o.cfg.logger
	report := Report{}

	var (
		channel harvest.ChannelSummary
		err     error
	)
	switch reference.Addressing {
	case harvest.AddressingPrivate:
		channel, err = o.ResolvePrivate(ctx, platform, reference.ChannelID)
		if err != nil {
			logger.ErrorContext(ctx, "private channel not found; ensure the account is a member",
				"channel_id", reference.ChannelID,
				"error", err,
			)
			report.Outcome = OutcomeChannelNotFound
			report.Err = err
			return report
		}
	default:
		channel, err = platform.ResolveEntity(ctx, reference.Username)
		if err != nil {
			logger.ErrorContext(ctx, "public channel could not be resolved", "username", reference.Username, "error", err)
			report.Outcome = OutcomeEntityUnresolved
			report.Err = err
			return report
		}
	}
	report.Channel = channel
	logger = logger.With("channel_id", channel.ID, "message_id", reference.MessageID)

	message, err := platform.GetMessage(ctx, channel, reference.MessageID)
	if err != nil {
		report.Err = err
		if errors.Is(err, harvest.ErrMessageNotFound) {
			logger.ErrorContext(ctx, "message not found", "error", err)
			report.Outcome = OutcomeMessageNotFound
			return report
		}
		logger.ErrorContext(ctx, "message lookup failed", "error", err)
		report.Outcome = OutcomeFailed
		return report
	}

	if !message.HasAttachment() {
		logger.InfoContext(ctx, "no attachment found in the message")
		report.Outcome = OutcomeNoAttachment
		return report
	}
	if !harvest.HasDownloadableMedia(message) {
		logger.InfoContext(ctx, "attachment is not a recognized media type (document/photo/video)",
			"media_kind", message.MediaKind(),
		)
		report.Outcome = OutcomeUnsupportedAttachment
		return report
	}

	folder, err := o.storage.AttachmentsFolder()
	if err != nil {
		logger.ErrorContext(ctx, "attachment folder could not be created", "error", err)
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}
	report.Folder = folder
	logger.InfoContext(ctx, "downloading attachment", "folder", folder)

	downloads, err := o.newScheduler(platform)
	if err != nil {
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}

	report.Tasks = 1
	outcome := downloads.DownloadOne(ctx, harvest.DownloadTask{Message: message, Folder: folder})
	report.Summary = downloads.Summary()
	report.Outcome = OutcomeCompleted
	report.Err = outcome.Err

	return report
}

func (o *Orchestrator) runBulk(ctx context.Context, platform harvest.Platform, input string) Report {
	logger := o.cfg.logger.With("group", input)
	report := Report{}

	channel, err := platform.ResolveEntity(ctx, input)
	if err != nil {
		if errors.Is(err, harvest.ErrEntityResolution) {
			logger.ErrorContext(ctx, "group link is invalid or has expired", "error", err)
		} else {
			logger.ErrorContext(ctx, "group could not be fetched", "error", err)
		}
		report.Outcome = OutcomeEntityUnresolved
		report.Err = err
		return report
	}
	report.Channel = channel
	logger = logger.With("channel_id", channel.ID, "title", channel.DisplayName())

	folder, err := o.storage.GroupFolder(channel)
	if err != nil {
		logger.ErrorContext(ctx, "group folder could not be created", "error", err)
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}
	report.Folder = folder
	logger.InfoContext(ctx, "downloading media", "folder", folder)

	downloads, err := o.newScheduler(platform)
	if err != nil {
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}

	logger.InfoContext(ctx, "collecting media messages")
	var enumerationErr error
	for message, err := range platform.Messages(ctx, channel) {
		if err != nil {
			enumerationErr = err
			break
		}
		if !harvest.HasDownloadableMedia(message) {
			continue
		}
		report.Tasks++
		downloads.Submit(ctx, harvest.DownloadTask{Message: message, Folder: folder})
	}

	if report.Tasks > 0 {
		logger.InfoContext(ctx, "waiting for media downloads", "tasks", report.Tasks, "threads", downloads.Threads())
	}
	report.Summary = downloads.Wait()

	if enumerationErr != nil {
		logger.ErrorContext(ctx, "iterating messages failed", "error", enumerationErr, "tasks", report.Tasks)
		report.Outcome = OutcomeEnumerationFailed
		report.Err = enumerationErr
		return report
	}
	if report.Tasks == 0 {
		logger.InfoContext(ctx, "no media found in the specified group")
		report.Outcome = OutcomeNoMedia
		return report
	}

	logger.InfoContext(ctx, "all media processed",
		"tasks", report.Tasks,
		"succeeded", report.Summary.Succeeded,
		"failed", report.Summary.Failed,
	)
	report.Outcome = OutcomeCompleted

	return report
}

// ResolvePrivate scans every channel visible to the authenticated identity and
// returns the first one whose id equals channelID.
//
// Scan failures and misses are both reported as harvest.ErrChannelNotFound;
// scan failures keep their cause in the chain.
func (o *Orchestrator) ResolvePrivate(
	ctx context.Context,
	lister harvest.ChannelLister,
	channelID int64,
) (harvest.ChannelSummary, error) {
	if lister == nil {
		return harvest.ChannelSummary{}, fmt.Errorf("resolve private channel %d: %w: nil lister", channelID, harvest.ErrChannelNotFound)
	}

	channel, found, err := harvest.FindByID(lister.Channels(ctx), channelID)
	if err != nil {
		return harvest.ChannelSummary{}, fmt.Errorf("resolve private channel %d: %w: %w", channelID, harvest.ErrChannelNotFound, err)
	}
	if !found {
		return harvest.ChannelSummary{}, fmt.Errorf("resolve private channel %d: %w", channelID, harvest.ErrChannelNotFound)
	}

	return channel, nil
}

func (o *Orchestrator) newScheduler(transfer harvest.Transfer) (*scheduler.Scheduler, error) {
	options := append([]scheduler.Option{scheduler.WithLogger(o.cfg.logger)}, o.cfg.schedulerOptions...)
	downloads, err := scheduler.New(transfer, o.threads, o.maxRetries, options...)
	if err != nil {
		return nil, fmt.Errorf("new download scheduler: %w", err)
	}

	return downloads, nil
}
