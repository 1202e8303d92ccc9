package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tg-harvest/pkg/harvest"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

const maxFileNameCollisions = 10_000

var (
	_ harvest.Platform = (*Platform)(nil)
	_ harvest.Session  = (*Session)(nil)
)

// RPC is the subset of the generated gotd client used by Platform.
type RPC interface {
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesCheckChatInvite(ctx context.Context, hash string) (tg.ChatInviteClass, error)
	MessagesGetDialogs(ctx context.Context, request *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	ChannelsGetMessages(ctx context.Context, request *tg.ChannelsGetMessagesRequest) (tg.MessagesMessagesClass, error)
	MessagesGetMessages(ctx context.Context, id []tg.InputMessageClass) (tg.MessagesMessagesClass, error)
}

// FileFetcher streams the file at location into w.
type FileFetcher func(ctx context.Context, location tg.InputFileLocationClass, w io.Writer) error

func downloaderFetcher(files *downloader.Downloader, api *tg.Client) FileFetcher {
	return func(ctx context.Context, location tg.InputFileLocationClass, w io.Writer) error {
		if _, err := files.Download(api, location).Stream(ctx, w); err != nil {
			return err
		}
		return nil
	}
}

type platformConfig struct {
	logger    *slog.Logger
	batchSize int
}

// PlatformOption mutates platform construction.
type PlatformOption func(*platformConfig)

// WithPlatformLogger configures the logger used for paging diagnostics.
func WithPlatformLogger(logger *slog.Logger) PlatformOption {
	return func(cfg *platformConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithHistoryBatchSize configures the page size of dialog and history requests.
func WithHistoryBatchSize(size int) PlatformOption {
	return func(cfg *platformConfig) {
		if size > 0 && size <= maxHistoryBatchSize {
			cfg.batchSize = size
		}
	}
}

// Platform implements harvest.Platform on top of an authenticated gotd client.
type Platform struct {
	api   RPC
	fetch FileFetcher
	cfg   platformConfig
}

// NewPlatform creates one Platform.
func NewPlatform(api RPC, fetch FileFetcher, options ...PlatformOption) (*Platform, error) {
	if api == nil {
		return nil, fmt.Errorf("new telegram platform: nil api")
	}
	if fetch == nil {
		return nil, fmt.Errorf("new telegram platform: nil file fetcher")
	}

	cfg := platformConfig{
		logger:    slog.Default(),
		batchSize: defaultHistoryBatchSize,
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Platform{api: api, fetch: fetch, cfg: cfg}, nil
}

// ResolveEntity resolves a username, public link or invite link.
//
// Every failure wraps harvest.ErrEntityResolution.
func (p *Platform) ResolveEntity(ctx context.Context, identifier string) (harvest.ChannelSummary, error) {
	parsed, err := parseGroupIdentifier(identifier)
	if err != nil {
		return harvest.ChannelSummary{}, err
	}

	switch parsed.kind {
	case identifierInvite:
		return p.resolveInvite(ctx, parsed.value)
	default:
		return p.resolveUsername(ctx, parsed.value)
	}
}

func (p *Platform) resolveUsername(ctx context.Context, username string) (harvest.ChannelSummary, error) {
	resolved, err := p.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return harvest.ChannelSummary{}, fmt.Errorf("resolve username %q: %w: %w", username, harvest.ErrEntityResolution, err)
	}
	if resolved == nil {
		return harvest.ChannelSummary{}, fmt.Errorf("resolve username %q: %w: empty result", username, harvest.ErrEntityResolution)
	}

	switch peer := resolved.Peer.(type) {
	case *tg.PeerChannel:
		if summary, ok := findChat(resolved.Chats, peer.ChannelID); ok {
			return summary, nil
		}
	case *tg.PeerChat:
		if summary, ok := findChat(resolved.Chats, peer.ChatID); ok {
			return summary, nil
		}
	case *tg.PeerUser:
		for _, user := range resolved.Users {
			summary, ok := summarizeUser(user)
			if ok && summary.ID == peer.UserID {
				return summary, nil
			}
		}
	}

	return harvest.ChannelSummary{}, fmt.Errorf("resolve username %q: %w: peer entity missing from result", username, harvest.ErrEntityResolution)
}

func (p *Platform) resolveInvite(ctx context.Context, hash string) (harvest.ChannelSummary, error) {
	invite, err := p.api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		if isInviteUnusable(err) {
			return harvest.ChannelSummary{}, fmt.Errorf("check invite: %w: invite link is invalid or has expired: %w", harvest.ErrEntityResolution, err)
		}
		return harvest.ChannelSummary{}, fmt.Errorf("check invite: %w: %w", harvest.ErrEntityResolution, err)
	}

	var chat tg.ChatClass
	switch typed := invite.(type) {
	case *tg.ChatInviteAlready:
		chat = typed.Chat
	case *tg.ChatInvitePeek:
		chat = typed.Chat
	case *tg.ChatInvite:
		return harvest.ChannelSummary{}, fmt.Errorf("check invite: %w: account is not a member of %q", harvest.ErrEntityResolution, typed.Title)
	default:
		return harvest.ChannelSummary{}, fmt.Errorf("check invite: %w: unexpected result %T", harvest.ErrEntityResolution, invite)
	}

	summary, ok := summarizeChat(chat)
	if !ok {
		return harvest.ChannelSummary{}, fmt.Errorf("check invite: %w: unexpected chat %T", harvest.ErrEntityResolution, chat)
	}

	return summary, nil
}

func findChat(chats []tg.ChatClass, id int64) (harvest.ChannelSummary, bool) {
	for _, chat := range chats {
		summary, ok := summarizeChat(chat)
		if ok && summary.ID == id {
			return summary, true
		}
	}

	return harvest.ChannelSummary{}, false
}

// Channels yields the channels and supergroups among the account's dialogs,
// fetching one dialog page at a time.
func (p *Platform) Channels(ctx context.Context) iter.Seq2[harvest.ChannelSummary, error] {
	return func(yield func(harvest.ChannelSummary, error) bool) {
		page := 0
		query := dialogs.QueryFunc(func(ctx context.Context, req dialogs.Request) (tg.MessagesDialogsClass, error) {
			page++
			result, err := p.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
				OffsetDate: req.OffsetDate,
				OffsetID:   req.OffsetID,
				OffsetPeer: req.OffsetPeer,
				Limit:      req.Limit,
			})
			if err != nil {
				return nil, fmt.Errorf("list dialogs page %d: %w", page, err)
			}
			p.cfg.logger.DebugContext(ctx, "telegram dialog page fetched", "page", page)
			return result, nil
		})

		elems := dialogs.NewIterator(query, p.cfg.batchSize)
		for elems.Next(ctx) {
			elem := elems.Value()
			channelPeer, ok := elem.Dialog.GetPeer().(*tg.PeerChannel)
			if !ok {
				continue
			}
			channel, ok := elem.Entities.Channel(channelPeer.ChannelID)
			if !ok {
				continue
			}
			summary, ok := summarizeChat(channel)
			if !ok {
				continue
			}
			if !yield(summary, nil) {
				return
			}
		}
		if err := elems.Err(); err != nil {
			yield(harvest.ChannelSummary{}, fmt.Errorf("list dialogs: %w", err))
		}
	}
}

// GetMessage fetches one message by id, using channels.getMessages for
// channels and messages.getMessages for basic chats and users.
func (p *Platform) GetMessage(ctx context.Context, channel harvest.ChannelSummary, messageID int) (harvest.Message, error) {
	peer, err := inputPeerOf(channel)
	if err != nil {
		return harvest.Message{}, fmt.Errorf("get message %d: %w", messageID, err)
	}

	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}}
	var result tg.MessagesMessagesClass
	switch typed := peer.(type) {
	case *tg.InputPeerChannel:
		result, err = p.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: typed.ChannelID, AccessHash: typed.AccessHash},
			ID:      ids,
		})
	default:
		result, err = p.api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		if tgerr.Is(err, "MESSAGE_IDS_EMPTY", "MSG_ID_INVALID") {
			return harvest.Message{}, fmt.Errorf("get message %d: %w: %w", messageID, harvest.ErrMessageNotFound, err)
		}
		return harvest.Message{}, fmt.Errorf("get message %d: %w", messageID, err)
	}

	for _, raw := range messagesOf(result) {
		if raw.GetID() != messageID {
			continue
		}
		if message, ok := mapMessage(raw, channel.ID); ok {
			return message, nil
		}
	}

	return harvest.Message{}, fmt.Errorf("get message %d in channel %d: %w", messageID, channel.ID, harvest.ErrMessageNotFound)
}

// Messages yields the channel history newest first, fetching one page per
// exhausted batch. Service messages are skipped.
func (p *Platform) Messages(ctx context.Context, channel harvest.ChannelSummary) iter.Seq2[harvest.Message, error] {
	return func(yield func(harvest.Message, error) bool) {
		peer, err := inputPeerOf(channel)
		if err != nil {
			yield(harvest.Message{}, fmt.Errorf("iterate messages: %w", err))
			return
		}

		offsetID := 0
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(harvest.Message{}, fmt.Errorf("iterate messages: %w", err))
				return
			}

			result, err := p.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
				Peer:     peer,
				OffsetID: offsetID,
				Limit:    p.cfg.batchSize,
			})
			if err != nil {
				yield(harvest.Message{}, fmt.Errorf("get history page %d of channel %d: %w", page, channel.ID, err))
				return
			}

			batch := messagesOf(result)
			p.cfg.logger.DebugContext(ctx, "telegram history page fetched",
				"channel_id", channel.ID,
				"page", page,
				"messages", len(batch),
			)
			if len(batch) == 0 {
				return
			}

			pageMinID := 0
			for _, raw := range batch {
				if id := raw.GetID(); id > 0 && (pageMinID == 0 || id < pageMinID) {
					pageMinID = id
				}
				message, ok := mapMessage(raw, channel.ID)
				if !ok {
					continue
				}
				if !yield(message, nil) {
					return
				}
			}

			if len(batch) < p.cfg.batchSize || pageMinID <= 1 || pageMinID == offsetID {
				return
			}
			offsetID = pageMinID
		}
	}
}

func inputPeerOf(channel harvest.ChannelSummary) (tg.InputPeerClass, error) {
	peer, ok := channel.Peer.(tg.InputPeerClass)
	if !ok || peer == nil {
		return nil, fmt.Errorf("channel %d has no telegram peer", channel.ID)
	}

	return peer, nil
}

func messagesOf(result tg.MessagesMessagesClass) []tg.MessageClass {
	switch typed := result.(type) {
	case *tg.MessagesMessages:
		return typed.Messages
	case *tg.MessagesMessagesSlice:
		return typed.Messages
	case *tg.MessagesChannelMessages:
		return typed.Messages
	default:
		return nil
	}
}

// Fetch stores the message attachment under folder and returns the written path.
//
// Existing files are never overwritten; a numbered suffix is added instead.
// Failures are returned as *harvest.TransferError.
func (p *Platform) Fetch(ctx context.Context, message harvest.Message, folder string) (string, error) {
	if message.Attachment == nil {
		return "", &harvest.TransferError{
			MessageID: message.ID,
			Kind:      harvest.TransferErrorKindPermanent,
			Cause:     harvest.ErrNoAttachment,
		}
	}
	location, ok := message.Attachment.Locator.(fileLocation)
	if !ok || location.location == nil {
		return "", &harvest.TransferError{
			MessageID: message.ID,
			Kind:      harvest.TransferErrorKindPermanent,
			Cause:     fmt.Errorf("attachment of kind %q has no telegram file location", message.Attachment.Kind),
		}
	}

	file, path, err := createUniqueFile(folder, location.fileName)
	if err != nil {
		return "", &harvest.TransferError{
			MessageID: message.ID,
			Kind:      harvest.TransferErrorKindPermanent,
			Cause:     err,
		}
	}

	fetchErr := p.fetch(ctx, location.location, file)
	closeErr := file.Close()
	if fetchErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if fetchErr != nil {
			return "", mapTelegramTransferError(message.ID, fetchErr)
		}
		return "", mapTelegramTransferError(message.ID, fmt.Errorf("close %s: %w", path, closeErr))
	}

	return path, nil
}

// createUniqueFile exclusively creates name under folder, appending " (n)"
// before the extension until an unused name is found.
func createUniqueFile(folder string, name string) (*os.File, string, error) {
	name = sanitizeFileName(name)
	if name == "" {
		return nil, "", fmt.Errorf("create file: empty file name")
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for attempt := 0; attempt < maxFileNameCollisions; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, attempt, ext)
		}
		path := filepath.Join(folder, candidate)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return nil, "", fmt.Errorf("create file %s: %w", path, err)
	}

	return nil, "", fmt.Errorf("create file %s: too many name collisions", filepath.Join(folder, name))
}
