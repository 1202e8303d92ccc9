package harvest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ReferenceKind identifies what a user-supplied reference names.
type ReferenceKind string

const (
	// ReferenceKindSingle identifies a reference to exactly one message.
	ReferenceKindSingle ReferenceKind = "single"
	// ReferenceKindBulk identifies a reference to a whole channel or group.
	ReferenceKindBulk ReferenceKind = "bulk"
)

// Addressing identifies how a single-message reference names its channel.
type Addressing string

const (
	// AddressingPublic addresses the channel by its public username.
	AddressingPublic Addressing = "public"
	// AddressingPrivate addresses the channel by its internal numeric id.
	AddressingPrivate Addressing = "private"
)

// MessageRef addresses one message inside one channel.
type MessageRef struct {
	// Addressing selects which of Username or ChannelID is meaningful.
	Addressing Addressing
	// Username is the public channel name for public addressing.
	Username string
	// ChannelID is the internal channel id for private addressing.
	ChannelID int64
	// MessageID is the message identifier inside the channel.
	MessageID int
}

// Reference is one classified user input.
//
// Exactly one of Message or Group is set, according to Kind.
type Reference struct {
	Kind    ReferenceKind
	Message *MessageRef
	Group   string
}

// IsSingle reports whether the reference names one message.
func (r Reference) IsSingle() bool {
	return r.Kind == ReferenceKindSingle && r.Message != nil
}

const linkHostPattern = `(?i:^(?:[a-z][a-z0-9+.\-]*://)?(?:www\.)?(?:t\.me|telegram\.me|telegram\.dog))`

var (
	privateMessagePattern = regexp.MustCompile(linkHostPattern + `/c/(\d+)/(\d+)`)
	publicMessagePattern  = regexp.MustCompile(linkHostPattern + `/([^/]+)/(\d+)`)
)

// Classify turns a user-supplied string into a Reference.
//
// Private message links win over public ones. A message link whose ids do not
// fit an integer is rejected; every other non-empty input is passed through as
// a bulk group identifier without further validation.
func Classify(input string) (Reference, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Reference{}, fmt.Errorf("classify reference: %w: empty input", ErrInvalidReferenceFormat)
	}

	message, err := ParseMessageReference(trimmed)
	if err == nil {
		return Reference{Kind: ReferenceKindSingle, Message: &message}, nil
	}
	if privateMessagePattern.MatchString(trimmed) || publicMessagePattern.MatchString(trimmed) {
		return Reference{}, fmt.Errorf("classify reference: %w", err)
	}

	return Reference{Kind: ReferenceKindBulk, Group: trimmed}, nil
}

// ParseMessageReference parses a single-message link.
//
// It fails with ErrInvalidReferenceFormat when input matches neither the
// private (`/c/<channel>/<message>`) nor the public (`/<name>/<message>`) shape.
func ParseMessageReference(input string) (MessageRef, error) {
	trimmed := strings.TrimSpace(input)

	if match := privateMessagePattern.FindStringSubmatch(trimmed); match != nil {
		channelID, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return MessageRef{}, fmt.Errorf("parse channel id %q: %w: %w", match[1], ErrInvalidReferenceFormat, err)
		}
		messageID, err := parseMessageID(match[2])
		if err != nil {
			return MessageRef{}, err
		}

		return MessageRef{
			Addressing: AddressingPrivate,
			ChannelID:  channelID,
			MessageID:  messageID,
		}, nil
	}

	if match := publicMessagePattern.FindStringSubmatch(trimmed); match != nil {
		messageID, err := parseMessageID(match[2])
		if err != nil {
			return MessageRef{}, err
		}

		return MessageRef{
			Addressing: AddressingPublic,
			Username:   match[1],
			MessageID:  messageID,
		}, nil
	}

	return MessageRef{}, fmt.Errorf("parse message reference %q: %w", trimmed, ErrInvalidReferenceFormat)
}

// IsSingleMessageReference reports whether input names exactly one message.
func IsSingleMessageReference(input string) bool {
	_, err := ParseMessageReference(input)

	return err == nil
}

func parseMessageID(raw string) (int, error) {
	messageID, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse message id %q: %w: %w", raw, ErrInvalidReferenceFormat, err)
	}

	return messageID, nil
}
