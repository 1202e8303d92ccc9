package telegram

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tg-harvest/pkg/harvest"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// fakeRPC serves canned gotd responses and records requests.
type fakeRPC struct {
	resolved      *tg.ContactsResolvedPeer
	resolveErr    error
	invite        tg.ChatInviteClass
	inviteErr     error
	dialogPages   []tg.MessagesDialogsClass
	dialogErr     error
	historyPages  []tg.MessagesMessagesClass
	historyErr    error
	lookup        tg.MessagesMessagesClass
	lookupErr     error
	channelLookup int
	plainLookup   int

	dialogRequests  []*tg.MessagesGetDialogsRequest
	historyRequests []*tg.MessagesGetHistoryRequest
}

func (f *fakeRPC) ContactsResolveUsername(context.Context, *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error) {
	return f.resolved, f.resolveErr
}

func (f *fakeRPC) MessagesCheckChatInvite(context.Context, string) (tg.ChatInviteClass, error) {
	return f.invite, f.inviteErr
}

func (f *fakeRPC) MessagesGetDialogs(_ context.Context, request *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error) {
	f.dialogRequests = append(f.dialogRequests, request)
	page := len(f.dialogRequests) - 1
	if page < len(f.dialogPages) {
		return f.dialogPages[page], nil
	}
	if f.dialogErr != nil {
		return nil, f.dialogErr
	}

	return &tg.MessagesDialogs{}, nil
}

func (f *fakeRPC) MessagesGetHistory(_ context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error) {
	f.historyRequests = append(f.historyRequests, request)
	page := len(f.historyRequests) - 1
	if page < len(f.historyPages) {
		return f.historyPages[page], nil
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}

	return &tg.MessagesMessages{}, nil
}

func (f *fakeRPC) ChannelsGetMessages(context.Context, *tg.ChannelsGetMessagesRequest) (tg.MessagesMessagesClass, error) {
	f.channelLookup++
	return f.lookup, f.lookupErr
}

func (f *fakeRPC) MessagesGetMessages(context.Context, []tg.InputMessageClass) (tg.MessagesMessagesClass, error) {
	f.plainLookup++
	return f.lookup, f.lookupErr
}

func newTestPlatform(t *testing.T, api RPC, fetch FileFetcher, batchSize int) *Platform {
	t.Helper()

	if fetch == nil {
		fetch = func(context.Context, tg.InputFileLocationClass, io.Writer) error { return nil }
	}
	platform, err := NewPlatform(api, fetch, WithPlatformLogger(discardLogger()), WithHistoryBatchSize(batchSize))
	if err != nil {
		t.Fatalf("new platform failed: %v", err)
	}

	return platform
}

func channelSummary(id int64) harvest.ChannelSummary {
	return harvest.ChannelSummary{ID: id, Peer: &tg.InputPeerChannel{ChannelID: id, AccessHash: 1}}
}

func TestPlatformResolveEntity(t *testing.T) {
	t.Parallel()

	channel := &tg.Channel{ID: 100, AccessHash: 5, Title: "Group", Username: "group"}
	tests := []struct {
		name       string
		api        *fakeRPC
		identifier string
		wantID     int64
		wantErr    bool
		wantSubstr string
	}{
		{
			name: "username",
			api: &fakeRPC{resolved: &tg.ContactsResolvedPeer{
				Peer:  &tg.PeerChannel{ChannelID: 100},
				Chats: []tg.ChatClass{&tg.Channel{ID: 99}, channel},
			}},
			identifier: "@group",
			wantID:     100,
		},
		{
			name: "public link",
			api: &fakeRPC{resolved: &tg.ContactsResolvedPeer{
				Peer:  &tg.PeerChannel{ChannelID: 100},
				Chats: []tg.ChatClass{channel},
			}},
			identifier: "https://t.me/group",
			wantID:     100,
		},
		{
			name:       "joined invite",
			api:        &fakeRPC{invite: &tg.ChatInviteAlready{Chat: channel}},
			identifier: "https://t.me/+AbC-123",
			wantID:     100,
		},
		{
			name:       "expired invite",
			api:        &fakeRPC{inviteErr: tgerr.New(400, "INVITE_HASH_EXPIRED")},
			identifier: "https://t.me/joinchat/AbC",
			wantErr:    true,
			wantSubstr: "invalid or has expired",
		},
		{
			name:       "invite without membership",
			api:        &fakeRPC{invite: &tg.ChatInvite{Title: "Closed"}},
			identifier: "t.me/+xyz",
			wantErr:    true,
			wantSubstr: "not a member",
		},
		{
			name:       "unknown username",
			api:        &fakeRPC{resolveErr: tgerr.New(400, "USERNAME_NOT_OCCUPIED")},
			identifier: "nobody_here",
			wantErr:    true,
		},
		{
			name:       "garbage identifier",
			api:        &fakeRPC{},
			identifier: "not a group!",
			wantErr:    true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			platform := newTestPlatform(t, testCase.api, nil, 0)
			summary, err := platform.ResolveEntity(context.Background(), testCase.identifier)
			if testCase.wantErr {
				if !errors.Is(err, harvest.ErrEntityResolution) {
					t.Fatalf("error = %v, want ErrEntityResolution", err)
				}
				if testCase.wantSubstr != "" && !strings.Contains(err.Error(), testCase.wantSubstr) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if summary.ID != testCase.wantID {
				t.Fatalf("id = %d, want %d", summary.ID, testCase.wantID)
			}
		})
	}
}

func TestPlatformChannelsPagesLazily(t *testing.T) {
	t.Parallel()

	firstPage := &tg.MessagesDialogsSlice{
		Count: 4,
		Dialogs: []tg.DialogClass{
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 1}, TopMessage: 10},
			&tg.Dialog{Peer: &tg.PeerChat{ChatID: 2}, TopMessage: 20},
		},
		Messages: []tg.MessageClass{&tg.Message{ID: 20, Date: 500, PeerID: &tg.PeerChat{ChatID: 2}}},
		Chats:    []tg.ChatClass{&tg.Channel{ID: 1, AccessHash: 11}, &tg.Chat{ID: 2}},
	}
	secondPage := &tg.MessagesDialogsSlice{
		Count: 4,
		Dialogs: []tg.DialogClass{
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 3}, TopMessage: 30},
		},
		Chats: []tg.ChatClass{&tg.Channel{ID: 3, AccessHash: 33}},
	}
	api := &fakeRPC{dialogPages: []tg.MessagesDialogsClass{firstPage, secondPage}}
	platform := newTestPlatform(t, api, nil, 2)

	var ids []int64
	for channel, err := range platform.Channels(context.Background()) {
		if err != nil {
			t.Fatalf("channels failed: %v", err)
		}
		ids = append(ids, channel.ID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("ids = %v, want [1 3]", ids)
	}
	if len(api.dialogRequests) != 3 {
		t.Fatalf("dialog requests = %d, want 3 ending with an empty page", len(api.dialogRequests))
	}
	next := api.dialogRequests[1]
	if next.OffsetID != 20 || next.OffsetDate != 500 {
		t.Fatalf("offset = %d/%d, want 20/500", next.OffsetID, next.OffsetDate)
	}
	if _, ok := next.OffsetPeer.(*tg.InputPeerChat); !ok {
		t.Fatalf("offset peer = %#v", next.OffsetPeer)
	}

	api = &fakeRPC{dialogPages: []tg.MessagesDialogsClass{firstPage, secondPage}}
	platform = newTestPlatform(t, api, nil, 2)
	found, ok, err := harvest.FindByID(platform.Channels(context.Background()), 1)
	if err != nil || !ok || found.ID != 1 {
		t.Fatalf("find = %+v %v %v", found, ok, err)
	}
	if len(api.dialogRequests) != 1 {
		t.Fatalf("dialog requests = %d, want 1 for early stop", len(api.dialogRequests))
	}
}

func TestPlatformChannelsSurfacesListingError(t *testing.T) {
	t.Parallel()

	listErr := errors.New("dialogs unavailable")
	platform := newTestPlatform(t, &fakeRPC{dialogErr: listErr}, nil, 0)

	_, _, err := harvest.FindByID(platform.Channels(context.Background()), 1)
	if !errors.Is(err, listErr) {
		t.Fatalf("error = %v, want listing error", err)
	}
}

func TestPlatformGetMessage(t *testing.T) {
	t.Parallel()

	found := &tg.MessagesChannelMessages{Messages: []tg.MessageClass{&tg.Message{ID: 7}}}
	tests := []struct {
		name          string
		api           *fakeRPC
		channel       harvest.ChannelSummary
		wantErr       error
		wantChannelRq int
		wantPlainRq   int
	}{
		{
			name:          "channel lookup",
			api:           &fakeRPC{lookup: found},
			channel:       channelSummary(5),
			wantChannelRq: 1,
		},
		{
			name:        "basic chat lookup",
			api:         &fakeRPC{lookup: &tg.MessagesMessages{Messages: []tg.MessageClass{&tg.Message{ID: 7}}}},
			channel:     harvest.ChannelSummary{ID: 6, Peer: &tg.InputPeerChat{ChatID: 6}},
			wantPlainRq: 1,
		},
		{
			name:          "empty message is not found",
			api:           &fakeRPC{lookup: &tg.MessagesChannelMessages{Messages: []tg.MessageClass{&tg.MessageEmpty{ID: 7}}}},
			channel:       channelSummary(5),
			wantErr:       harvest.ErrMessageNotFound,
			wantChannelRq: 1,
		},
		{
			name:          "invalid id is not found",
			api:           &fakeRPC{lookupErr: tgerr.New(400, "MSG_ID_INVALID")},
			channel:       channelSummary(5),
			wantErr:       harvest.ErrMessageNotFound,
			wantChannelRq: 1,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			platform := newTestPlatform(t, testCase.api, nil, 0)
			message, err := platform.GetMessage(context.Background(), testCase.channel, 7)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("error = %v, want %v", err, testCase.wantErr)
				}
			} else if err != nil || message.ID != 7 {
				t.Fatalf("message = %+v, err = %v", message, err)
			}
			if testCase.api.channelLookup != testCase.wantChannelRq || testCase.api.plainLookup != testCase.wantPlainRq {
				t.Fatalf("lookups = %d/%d, want %d/%d",
					testCase.api.channelLookup, testCase.api.plainLookup,
					testCase.wantChannelRq, testCase.wantPlainRq,
				)
			}
		})
	}
}

func TestPlatformMessagesPagesHistory(t *testing.T) {
	t.Parallel()

	api := &fakeRPC{
		historyPages: []tg.MessagesMessagesClass{
			&tg.MessagesChannelMessages{Messages: []tg.MessageClass{
				&tg.Message{ID: 10},
				&tg.MessageService{ID: 9},
			}},
			&tg.MessagesChannelMessages{Messages: []tg.MessageClass{
				&tg.Message{ID: 8},
			}},
		},
	}
	platform := newTestPlatform(t, api, nil, 2)

	var ids []int
	for message, err := range platform.Messages(context.Background(), channelSummary(5)) {
		if err != nil {
			t.Fatalf("messages failed: %v", err)
		}
		ids = append(ids, message.ID)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 8 {
		t.Fatalf("ids = %v, want [10 8]", ids)
	}
	if len(api.historyRequests) != 2 || api.historyRequests[1].OffsetID != 9 {
		t.Fatalf("history requests = %d, want second page from offset 9", len(api.historyRequests))
	}
}

func TestPlatformMessagesSurfacesPageError(t *testing.T) {
	t.Parallel()

	historyErr := errors.New("timeout")
	api := &fakeRPC{
		historyPages: []tg.MessagesMessagesClass{
			&tg.MessagesChannelMessages{Messages: []tg.MessageClass{&tg.Message{ID: 4}, &tg.Message{ID: 3}}},
		},
		historyErr: historyErr,
	}
	platform := newTestPlatform(t, api, nil, 2)

	var (
		yielded int
		lastErr error
	)
	for _, err := range platform.Messages(context.Background(), channelSummary(5)) {
		if err != nil {
			lastErr = err
			break
		}
		yielded++
	}
	if yielded != 2 || !errors.Is(lastErr, historyErr) {
		t.Fatalf("yielded = %d, err = %v", yielded, lastErr)
	}
}

func documentMessage(id int, name string) harvest.Message {
	return harvest.Message{
		ID: id,
		Attachment: &harvest.Attachment{
			Kind:     harvest.MediaKindDocument,
			FileName: name,
			Locator: fileLocation{
				location: &tg.InputDocumentFileLocation{ID: int64(id)},
				fileName: name,
			},
		},
	}
}

func TestPlatformFetch(t *testing.T) {
	t.Parallel()

	folder := t.TempDir()
	fetch := func(_ context.Context, _ tg.InputFileLocationClass, w io.Writer) error {
		_, err := io.WriteString(w, "payload")
		return err
	}
	platform := newTestPlatform(t, &fakeRPC{}, fetch, 0)

	first, err := platform.Fetch(context.Background(), documentMessage(1, "report.pdf"), folder)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	second, err := platform.Fetch(context.Background(), documentMessage(2, "report.pdf"), folder)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if first != filepath.Join(folder, "report.pdf") || second != filepath.Join(folder, "report (1).pdf") {
		t.Fatalf("paths = %q, %q", first, second)
	}
	content, err := os.ReadFile(second)
	if err != nil || string(content) != "payload" {
		t.Fatalf("content = %q, err = %v", content, err)
	}
}

func TestPlatformFetchFailureRemovesPartialFile(t *testing.T) {
	t.Parallel()

	folder := t.TempDir()
	fetch := func(_ context.Context, _ tg.InputFileLocationClass, w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return tgerr.New(420, "FLOOD_WAIT_3")
	}
	platform := newTestPlatform(t, &fakeRPC{}, fetch, 0)

	path, err := platform.Fetch(context.Background(), documentMessage(3, "clip.mp4"), folder)
	if path != "" {
		t.Fatalf("path = %q, want empty", path)
	}
	transferErr, ok := harvest.AsTransferError(err)
	if !ok || transferErr.Kind != harvest.TransferErrorKindRateLimited || transferErr.MessageID != 3 {
		t.Fatalf("error = %v, want rate-limited transfer error", err)
	}
	if _, statErr := os.Stat(filepath.Join(folder, "clip.mp4")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial file left behind: %v", statErr)
	}

	_, err = platform.Fetch(context.Background(), harvest.Message{ID: 4, Attachment: &harvest.Attachment{Kind: harvest.MediaKindPhoto}}, folder)
	if transferErr, ok := harvest.AsTransferError(err); !ok || transferErr.Kind != harvest.TransferErrorKindPermanent {
		t.Fatalf("error = %v, want permanent transfer error", err)
	}
}
