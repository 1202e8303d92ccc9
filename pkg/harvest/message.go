package harvest

import "time"

// MediaKind identifies attachment categories relevant to downloading.
type MediaKind string

const (
	// MediaKindNone identifies messages without any attachment.
	MediaKindNone MediaKind = ""
	// MediaKindDocument identifies a generic file attachment, including audio files.
	MediaKindDocument MediaKind = "document"
	// MediaKindPhoto identifies an image attachment.
	MediaKindPhoto MediaKind = "photo"
	// MediaKindVideo identifies a video attachment.
	MediaKindVideo MediaKind = "video"
	// MediaKindUnsupported identifies attachments that carry no file, such as
	// web page previews, polls or locations.
	MediaKindUnsupported MediaKind = "unsupported"
)

// Attachment describes the file carried by one message.
type Attachment struct {
	Kind      MediaKind
	FileName  string
	MIMEType  string
	SizeBytes int64
	// Locator is an opaque platform value consumed by the Transfer that produced it.
	Locator any
}

// Message is a read-only projection of one channel message.
type Message struct {
	ID         int
	ChannelID  int64
	Date       time.Time
	Attachment *Attachment
}

// MediaKind returns the attachment kind or MediaKindNone.
func (m Message) MediaKind() MediaKind {
	if m.Attachment == nil {
		return MediaKindNone
	}

	return m.Attachment.Kind
}

// HasAttachment reports whether the message carries any attachment at all.
func (m Message) HasAttachment() bool {
	return m.MediaKind() != MediaKindNone
}

// HasDownloadableMedia reports whether message carries a document, photo or video.
func HasDownloadableMedia(message Message) bool {
	switch message.MediaKind() {
	case MediaKindDocument, MediaKindPhoto, MediaKindVideo:
		return true
	default:
		return false
	}
}

// DownloadTask asks for one message attachment to be stored in Folder.
type DownloadTask struct {
	Message Message
	Folder  string
}
