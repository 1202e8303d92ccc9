package harvest

import (
	"iter"
	"strconv"
	"strings"
)

// Identified is implemented by entities addressable by a numeric id.
type Identified interface {
	EntityID() int64
}

// ChannelSummary is a resolved, addressable channel handle.
type ChannelSummary struct {
	ID       int64
	Title    string
	Username string
	// Peer is an opaque platform addressing value owned by the producing platform.
	Peer any
}

// EntityID returns the channel id.
func (c ChannelSummary) EntityID() int64 {
	return c.ID
}

// DisplayName returns the channel title, falling back to its numeric id.
func (c ChannelSummary) DisplayName() string {
	if title := strings.TrimSpace(c.Title); title != "" {
		return title
	}

	return strconv.FormatInt(c.ID, 10)
}

// FindByID returns the first element of seq whose id equals id.
//
// Iteration stops at the first match or the first error.
func FindByID[T Identified](seq iter.Seq2[T, error], id int64) (T, bool, error) {
	var zero T
	if seq == nil {
		return zero, false, nil
	}

	for item, err := range seq {
		if err != nil {
			return zero, false, err
		}
		if item.EntityID() == id {
			return item, true, nil
		}
	}

	return zero, false, nil
}
