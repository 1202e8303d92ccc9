package telegram

import (
	"testing"
	"time"

	"tg-harvest/pkg/harvest"

	"github.com/gotd/td/tg"
)

func TestMapMessage(t *testing.T) {
	t.Parallel()

	photo := &tg.Photo{
		ID:         55,
		AccessHash: 66,
		Sizes: []tg.PhotoSizeClass{
			&tg.PhotoStrippedSize{Type: "i", Bytes: []byte{1}},
			&tg.PhotoSize{Type: "m", W: 320, H: 240, Size: 1_000},
			&tg.PhotoSizeProgressive{Type: "y", W: 1280, H: 960, Sizes: []int{2_000, 9_000}},
			&tg.PhotoSize{Type: "x", W: 800, H: 600, Size: 5_000},
		},
	}

	tests := []struct {
		name         string
		raw          tg.MessageClass
		wantOK       bool
		wantKind     harvest.MediaKind
		wantFileName string
		assert       func(t *testing.T, message harvest.Message)
	}{
		{
			name:   "plain text message",
			raw:    &tg.Message{ID: 1, Date: 1_700_000_000, Message: "hi"},
			wantOK: true,
			assert: func(t *testing.T, message harvest.Message) {
				if message.HasAttachment() {
					t.Fatal("text message must have no attachment")
				}
				if !message.Date.Equal(time.Unix(1_700_000_000, 0)) {
					t.Fatalf("date = %s", message.Date)
				}
			},
		},
		{
			name:         "photo picks largest size",
			raw:          &tg.Message{ID: 2, Media: &tg.MessageMediaPhoto{Photo: photo}},
			wantOK:       true,
			wantKind:     harvest.MediaKindPhoto,
			wantFileName: "2_55.jpg",
			assert: func(t *testing.T, message harvest.Message) {
				location, ok := message.Attachment.Locator.(fileLocation)
				if !ok {
					t.Fatalf("locator = %T", message.Attachment.Locator)
				}
				photoLocation, ok := location.location.(*tg.InputPhotoFileLocation)
				if !ok || photoLocation.ThumbSize != "y" {
					t.Fatalf("location = %#v, want thumb size y", location.location)
				}
				if message.Attachment.SizeBytes != 9_000 {
					t.Fatalf("size = %d, want 9000", message.Attachment.SizeBytes)
				}
			},
		},
		{
			name: "video document",
			raw: &tg.Message{ID: 3, Media: &tg.MessageMediaDocument{Document: &tg.Document{
				ID:         77,
				MimeType:   "video/mp4",
				Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{W: 1, H: 1}},
			}}},
			wantOK:       true,
			wantKind:     harvest.MediaKindVideo,
			wantFileName: "3_77.mp4",
		},
		{
			name: "named document keeps base name",
			raw: &tg.Message{ID: 4, Media: &tg.MessageMediaDocument{Document: &tg.Document{
				ID:       78,
				MimeType: "application/pdf",
				Attributes: []tg.DocumentAttributeClass{
					&tg.DocumentAttributeFilename{FileName: "../../report:final.pdf"},
				},
			}}},
			wantOK:       true,
			wantKind:     harvest.MediaKindDocument,
			wantFileName: "report_final.pdf",
		},
		{
			name: "audio is a document",
			raw: &tg.Message{ID: 5, Media: &tg.MessageMediaDocument{Document: &tg.Document{
				ID:         79,
				MimeType:   "audio/mpeg",
				Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Duration: 3}},
			}}},
			wantOK:       true,
			wantKind:     harvest.MediaKindDocument,
			wantFileName: "5_79.mp3",
		},
		{
			name:     "web page preview is unsupported",
			raw:      &tg.Message{ID: 6, Media: &tg.MessageMediaWebPage{Webpage: &tg.WebPageEmpty{ID: 1}}},
			wantOK:   true,
			wantKind: harvest.MediaKindUnsupported,
		},
		{
			name:     "geo point is unsupported",
			raw:      &tg.Message{ID: 7, Media: &tg.MessageMediaGeo{Geo: &tg.GeoPointEmpty{}}},
			wantOK:   true,
			wantKind: harvest.MediaKindUnsupported,
		},
		{
			name:     "empty photo is unsupported",
			raw:      &tg.Message{ID: 8, Media: &tg.MessageMediaPhoto{Photo: &tg.PhotoEmpty{ID: 1}}},
			wantOK:   true,
			wantKind: harvest.MediaKindUnsupported,
		},
		{
			name:   "service message rejected",
			raw:    &tg.MessageService{ID: 9},
			wantOK: false,
		},
		{
			name:   "empty message rejected",
			raw:    &tg.MessageEmpty{ID: 10},
			wantOK: false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			message, ok := mapMessage(testCase.raw, 42)
			if ok != testCase.wantOK {
				t.Fatalf("ok = %v, want %v", ok, testCase.wantOK)
			}
			if !ok {
				return
			}
			if message.ChannelID != 42 {
				t.Fatalf("channel id = %d, want 42", message.ChannelID)
			}
			if message.MediaKind() != testCase.wantKind {
				t.Fatalf("kind = %q, want %q", message.MediaKind(), testCase.wantKind)
			}
			if testCase.wantFileName != "" && message.Attachment.FileName != testCase.wantFileName {
				t.Fatalf("file name = %q, want %q", message.Attachment.FileName, testCase.wantFileName)
			}
			if testCase.assert != nil {
				testCase.assert(t, message)
			}
		})
	}
}

func TestSummarizeChat(t *testing.T) {
	t.Parallel()

	channel, ok := summarizeChat(&tg.Channel{ID: 10, AccessHash: 20, Title: "News", Username: "news"})
	if !ok || channel.ID != 10 || channel.Username != "news" {
		t.Fatalf("channel = %+v, ok=%v", channel, ok)
	}
	peer, ok := channel.Peer.(*tg.InputPeerChannel)
	if !ok || peer.AccessHash != 20 {
		t.Fatalf("peer = %#v", channel.Peer)
	}

	chat, ok := summarizeChat(&tg.Chat{ID: 11, Title: "Group"})
	if !ok {
		t.Fatal("basic chat must be summarized")
	}
	if _, isChat := chat.Peer.(*tg.InputPeerChat); !isChat {
		t.Fatalf("peer = %#v", chat.Peer)
	}

	if _, ok := summarizeChat(&tg.ChatEmpty{ID: 12}); ok {
		t.Fatal("empty chat must be rejected")
	}
}

func TestExtensionForMIME(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"image/jpeg":        ".jpg",
		"VIDEO/MP4":         ".mp4",
		"":                  ".bin",
		"application/x-zzz": ".bin",
	}
	for mimeType, want := range tests {
		if got := extensionForMIME(mimeType); got != want {
			t.Fatalf("extensionForMIME(%q) = %q, want %q", mimeType, got, want)
		}
	}
}
