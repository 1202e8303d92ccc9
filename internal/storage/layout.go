package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"tg-harvest/pkg/harvest"
)

const (
	// DefaultRoot is the directory that receives one subdirectory per run.
	DefaultRoot = "results"
	// AttachmentsFolderName is the single-message destination inside a run directory.
	AttachmentsFolderName = "attachments"

	runTimestampLayout = "2006-01-02_15-04-05"
	dirPermissions     = 0o755
)

// Layout owns the on-disk output structure of one run:
// `<root>/<timestamp>/` with either `<group>/` or `attachments/` inside.
type Layout struct {
	runDir string
}

// NewLayout plans the run directory for a run started at now. Nothing is created
// until Prepare is called.
func NewLayout(root string, now time.Time) (*Layout, error) {
	trimmedRoot := strings.TrimSpace(root)
	if trimmedRoot == "" {
		trimmedRoot = DefaultRoot
	}
	if now.IsZero() {
		return nil, fmt.Errorf("new layout: zero run time")
	}

	return &Layout{
		runDir: filepath.Join(trimmedRoot, now.Format(runTimestampLayout)),
	}, nil
}

// RunDir returns the run directory path.
func (l *Layout) RunDir() string {
	return l.runDir
}

// Prepare creates the run directory and its parents. It is idempotent.
func (l *Layout) Prepare() error {
	if err := ensureDir(l.runDir); err != nil {
		return fmt.Errorf("prepare run directory: %w", err)
	}

	return nil
}

// GroupFolder creates the destination for one bulk channel run, named after
// the channel display name.
func (l *Layout) GroupFolder(channel harvest.ChannelSummary) (string, error) {
	name := sanitizeFolderName(channel.DisplayName())
	if name == "" {
		name = fmt.Sprintf("%d", channel.ID)
	}

	folder := filepath.Join(l.runDir, name)
	if err := ensureDir(folder); err != nil {
		return "", fmt.Errorf("create group folder: %w", err)
	}

	return folder, nil
}

// AttachmentsFolder creates the destination for single-message runs.
func (l *Layout) AttachmentsFolder() (string, error) {
	folder := filepath.Join(l.runDir, AttachmentsFolderName)
	if err := ensureDir(folder); err != nil {
		return "", fmt.Errorf("create attachments folder: %w", err)
	}

	return folder, nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, dirPermissions); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}

	return nil
}

// sanitizeFolderName keeps a display name usable as a single path element.
func sanitizeFolderName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "." || cleaned == ".." {
		return ""
	}

	return cleaned
}
