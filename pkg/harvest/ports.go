package harvest

import (
	"context"
	"iter"
)

// EntityResolver resolves a bulk group identifier into a channel.
type EntityResolver interface {
	// ResolveEntity accepts a username, public link or invite link.
	ResolveEntity(ctx context.Context, identifier string) (ChannelSummary, error)
}

// ChannelLister lists channels visible to the authenticated identity.
type ChannelLister interface {
	// Channels yields visible channels lazily in platform order.
	Channels(ctx context.Context) iter.Seq2[ChannelSummary, error]
}

// MessageGetter fetches one message by id.
type MessageGetter interface {
	// GetMessage returns ErrMessageNotFound when the message is absent.
	GetMessage(ctx context.Context, channel ChannelSummary, messageID int) (Message, error)
}

// MessageLister enumerates a channel's message stream.
type MessageLister interface {
	// Messages yields messages lazily in platform-native order. Each call starts
	// an independent enumeration.
	Messages(ctx context.Context, channel ChannelSummary) iter.Seq2[Message, error]
}

// Transfer stores one message attachment under folder.
type Transfer interface {
	// Fetch returns the written file path. An empty path is treated as failure.
	Fetch(ctx context.Context, message Message, folder string) (string, error)
}

// Platform is the authenticated platform client capability.
type Platform interface {
	EntityResolver
	ChannelLister
	MessageGetter
	MessageLister
	Transfer
}

// Session authenticates against the platform and runs fn while connected.
type Session interface {
	// Run returns an error wrapping ErrAuthentication when sign-in fails.
	Run(ctx context.Context, fn func(ctx context.Context, platform Platform) error) error
}

// Storage creates destination folders for one run.
type Storage interface {
	// GroupFolder creates and returns the folder for a bulk channel run.
	GroupFolder(channel ChannelSummary) (string, error)
	// AttachmentsFolder creates and returns the folder for single-message runs.
	AttachmentsFolder() (string, error)
}
