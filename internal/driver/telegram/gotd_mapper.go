package telegram

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"tg-harvest/pkg/harvest"

	"github.com/gotd/td/tg"
)

// fileLocation is the opaque attachment locator produced by this package.
type fileLocation struct {
	location tg.InputFileLocationClass
	fileName string
}

var knownMIMEExtensions = map[string]string{
	"image/jpeg":              ".jpg",
	"image/png":               ".png",
	"image/gif":               ".gif",
	"image/webp":              ".webp",
	"video/mp4":               ".mp4",
	"video/quicktime":         ".mov",
	"video/webm":              ".webm",
	"audio/mpeg":              ".mp3",
	"audio/ogg":               ".ogg",
	"audio/mp4":               ".m4a",
	"application/pdf":         ".pdf",
	"application/zip":         ".zip",
	"application/x-tgsticker": ".tgs",
	"text/plain":              ".txt",
}

// summarizeChat converts one chat entity into a channel summary.
func summarizeChat(chat tg.ChatClass) (harvest.ChannelSummary, bool) {
	switch typed := chat.(type) {
	case *tg.Channel:
		return harvest.ChannelSummary{
			ID:       typed.ID,
			Title:    typed.Title,
			Username: typed.Username,
			Peer:     typed.AsInputPeer(),
		}, true
	case *tg.ChannelForbidden:
		return harvest.ChannelSummary{
			ID:    typed.ID,
			Title: typed.Title,
			Peer: &tg.InputPeerChannel{
				ChannelID:  typed.ID,
				AccessHash: typed.AccessHash,
			},
		}, true
	case *tg.Chat:
		return harvest.ChannelSummary{
			ID:    typed.ID,
			Title: typed.Title,
			Peer:  typed.AsInputPeer(),
		}, true
	case *tg.ChatForbidden:
		return harvest.ChannelSummary{
			ID:    typed.ID,
			Title: typed.Title,
			Peer:  &tg.InputPeerChat{ChatID: typed.ID},
		}, true
	default:
		return harvest.ChannelSummary{}, false
	}
}

// summarizeUser converts one user entity into a channel summary addressing
// the private conversation with that user.
func summarizeUser(user tg.UserClass) (harvest.ChannelSummary, bool) {
	typed, ok := user.(*tg.User)
	if !ok || typed == nil {
		return harvest.ChannelSummary{}, false
	}

	title := strings.TrimSpace(strings.Join([]string{typed.FirstName, typed.LastName}, " "))
	return harvest.ChannelSummary{
		ID:       typed.ID,
		Title:    title,
		Username: typed.Username,
		Peer:     typed.AsInputPeer(),
	}, true
}

// mapMessage projects one history or lookup result into a harvest message.
// Empty and service messages are rejected.
func mapMessage(raw tg.MessageClass, channelID int64) (harvest.Message, bool) {
	message, ok := raw.(*tg.Message)
	if !ok || message == nil {
		return harvest.Message{}, false
	}

	return harvest.Message{
		ID:         message.ID,
		ChannelID:  channelID,
		Date:       intToTimeUTC(message.Date),
		Attachment: mapMessageMedia(message.ID, message.Media),
	}, true
}

func mapMessageMedia(messageID int, media tg.MessageMediaClass) *harvest.Attachment {
	if media == nil {
		return nil
	}

	switch typed := media.(type) {
	case *tg.MessageMediaEmpty:
		return nil
	case *tg.MessageMediaPhoto:
		photo, ok := typed.GetPhoto()
		if !ok {
			return unsupportedAttachment("image/jpeg")
		}
		return mapPhotoMedia(messageID, photo)
	case *tg.MessageMediaDocument:
		document, ok := typed.GetDocument()
		if !ok {
			return unsupportedAttachment("")
		}
		return mapDocumentMedia(messageID, document)
	default:
		return unsupportedAttachment("")
	}
}

func unsupportedAttachment(mimeType string) *harvest.Attachment {
	return &harvest.Attachment{Kind: harvest.MediaKindUnsupported, MIMEType: mimeType}
}

func mapPhotoMedia(messageID int, photo tg.PhotoClass) *harvest.Attachment {
	typed, ok := photo.(*tg.Photo)
	if !ok || typed == nil {
		return unsupportedAttachment("image/jpeg")
	}

	thumbType, size, ok := largestPhotoSize(typed.Sizes)
	if !ok {
		return unsupportedAttachment("image/jpeg")
	}

	fileName := fmt.Sprintf("%d_%d.jpg", messageID, typed.ID)
	return &harvest.Attachment{
		Kind:      harvest.MediaKindPhoto,
		FileName:  fileName,
		MIMEType:  "image/jpeg",
		SizeBytes: int64(size),
		Locator: fileLocation{
			location: &tg.InputPhotoFileLocation{
				ID:            typed.ID,
				AccessHash:    typed.AccessHash,
				FileReference: typed.FileReference,
				ThumbSize:     thumbType,
			},
			fileName: fileName,
		},
	}
}

// largestPhotoSize picks the downloadable size with the most bytes.
// Stripped, cached and path sizes are inline thumbnails and are skipped.
func largestPhotoSize(sizes []tg.PhotoSizeClass) (string, int, bool) {
	bestType := ""
	bestBytes := -1
	bestArea := -1
	for _, size := range sizes {
		var (
			sizeType string
			bytes    int
			area     int
		)
		switch typed := size.(type) {
		case *tg.PhotoSize:
			sizeType, bytes, area = typed.Type, typed.Size, typed.W*typed.H
		case *tg.PhotoSizeProgressive:
			if len(typed.Sizes) > 0 {
				bytes = typed.Sizes[len(typed.Sizes)-1]
			}
			sizeType, area = typed.Type, typed.W*typed.H
		default:
			continue
		}
		if bytes > bestBytes || (bytes == bestBytes && area > bestArea) {
			bestType, bestBytes, bestArea = sizeType, bytes, area
		}
	}
	if bestType == "" {
		return "", 0, false
	}

	return bestType, bestBytes, true
}

func mapDocumentMedia(messageID int, document tg.DocumentClass) *harvest.Attachment {
	typed, ok := document.(*tg.Document)
	if !ok || typed == nil {
		return unsupportedAttachment("")
	}

	fileName := sanitizeFileName(documentFileName(typed.Attributes))
	if fileName == "" {
		fileName = fmt.Sprintf("%d_%d%s", messageID, typed.ID, extensionForMIME(typed.MimeType))
	}

	return &harvest.Attachment{
		Kind:      mediaKindFromDocument(typed.MimeType, typed.Attributes),
		FileName:  fileName,
		MIMEType:  typed.MimeType,
		SizeBytes: typed.Size,
		Locator: fileLocation{
			location: &tg.InputDocumentFileLocation{
				ID:            typed.ID,
				AccessHash:    typed.AccessHash,
				FileReference: typed.FileReference,
			},
			fileName: fileName,
		},
	}
}

// mediaKindFromDocument reports video for video attributes or MIME types and
// document otherwise, audio included.
func mediaKindFromDocument(mimeType string, attributes []tg.DocumentAttributeClass) harvest.MediaKind {
	for _, attribute := range attributes {
		switch attribute.(type) {
		case *tg.DocumentAttributeAudio:
			return harvest.MediaKindDocument
		case *tg.DocumentAttributeVideo:
			return harvest.MediaKindVideo
		}
	}

	if strings.HasPrefix(strings.ToLower(mimeType), "video/") {
		return harvest.MediaKindVideo
	}

	return harvest.MediaKindDocument
}

func documentFileName(attributes []tg.DocumentAttributeClass) string {
	for _, attribute := range attributes {
		typed, ok := attribute.(*tg.DocumentAttributeFilename)
		if !ok {
			continue
		}
		return typed.FileName
	}

	return ""
}

func extensionForMIME(mimeType string) string {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if normalized == "" {
		return ".bin"
	}
	if ext, ok := knownMIMEExtensions[normalized]; ok {
		return ext
	}
	if extensions, err := mime.ExtensionsByType(normalized); err == nil && len(extensions) > 0 {
		return extensions[0]
	}

	return ".bin"
}

// sanitizeFileName keeps only the base name and strips characters that are
// invalid on common filesystems.
func sanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		return ""
	}

	replacer := strings.NewReplacer(
		"<", "_", ">", "_", ":", "_", `"`, "_",
		"|", "_", "?", "_", "*", "_", "\x00", "_",
	)

	return strings.TrimSpace(replacer.Replace(base))
}

func intToTimeUTC(value int) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(value), 0).UTC()
}
