package telegram

import (
	"fmt"
	"regexp"
	"strings"

	"tg-harvest/pkg/harvest"
)

type identifierKind int

const (
	identifierUsername identifierKind = iota + 1
	identifierInvite
)

// groupIdentifier is a parsed bulk reference: a public username or an invite hash.
type groupIdentifier struct {
	kind  identifierKind
	value string
}

var (
	inviteLinkPattern = regexp.MustCompile(`(?i)^(?:[a-z][a-z0-9+.\-]*://)?(?:www\.)?(?:t\.me|telegram\.me|telegram\.dog)/(?:\+|joinchat/)([\w-]+)/?$`)
	userLinkPattern   = regexp.MustCompile(`(?i)^(?:[a-z][a-z0-9+.\-]*://)?(?:www\.)?(?:t\.me|telegram\.me|telegram\.dog)/([a-z0-9_]+)/?$`)
	tgResolvePattern  = regexp.MustCompile(`(?i)^tg://resolve\?domain=([a-z0-9_]+)$`)
	usernamePattern   = regexp.MustCompile(`(?i)^[a-z0-9_]{3,32}$`)
)

// parseGroupIdentifier accepts @name, name, public links and invite links.
func parseGroupIdentifier(input string) (groupIdentifier, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return groupIdentifier{}, fmt.Errorf("parse group identifier: %w: empty input", harvest.ErrEntityResolution)
	}

	if match := inviteLinkPattern.FindStringSubmatch(trimmed); match != nil {
		return groupIdentifier{kind: identifierInvite, value: match[1]}, nil
	}
	if match := userLinkPattern.FindStringSubmatch(trimmed); match != nil {
		return groupIdentifier{kind: identifierUsername, value: match[1]}, nil
	}
	if match := tgResolvePattern.FindStringSubmatch(trimmed); match != nil {
		return groupIdentifier{kind: identifierUsername, value: match[1]}, nil
	}

	name := strings.TrimPrefix(trimmed, "@")
	if usernamePattern.MatchString(name) {
		return groupIdentifier{kind: identifierUsername, value: name}, nil
	}

	return groupIdentifier{}, fmt.Errorf("parse group identifier %q: %w: unrecognized format", trimmed, harvest.ErrEntityResolution)
}
