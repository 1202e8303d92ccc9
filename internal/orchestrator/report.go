package orchestrator

import (
	"tg-harvest/internal/scheduler"
	"tg-harvest/pkg/harvest"
)

// State is one orchestration state.
type State string

const (
	// StateStart is the state before authentication.
	StateStart State = "start"
	// StateAuthenticated is reached once the platform session signed in.
	StateAuthenticated State = "authenticated"
	// StateSinglePath handles a single-message reference.
	StateSinglePath State = "single_path"
	// StateBulkPath handles a channel reference.
	StateBulkPath State = "bulk_path"
	// StateDone is terminal.
	StateDone State = "done"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeCompleted means download tasks ran; see Report.Summary for per-task results.
	OutcomeCompleted Outcome = "completed"
	// OutcomeNoMedia means the channel had no downloadable media.
	OutcomeNoMedia Outcome = "no_media"
	// OutcomeNoAttachment means the addressed message carries no attachment.
	OutcomeNoAttachment Outcome = "no_attachment"
	// OutcomeUnsupportedAttachment means the attachment is not a document, photo or video.
	OutcomeUnsupportedAttachment Outcome = "unsupported_attachment"
	// OutcomeMessageNotFound means the addressed message does not exist.
	OutcomeMessageNotFound Outcome = "message_not_found"
	// OutcomeInvalidReference means the input could not be parsed.
	OutcomeInvalidReference Outcome = "invalid_reference"
	// OutcomeChannelNotFound means a private channel id matched no visible channel.
	OutcomeChannelNotFound Outcome = "channel_not_found"
	// OutcomeEntityUnresolved means a group or public channel could not be resolved.
	OutcomeEntityUnresolved Outcome = "entity_unresolved"
	// OutcomeEnumerationFailed means listing the channel history failed midway;
	// tasks dispatched before the failure were still joined.
	OutcomeEnumerationFailed Outcome = "enumeration_failed"
	// OutcomeFailed means a local step such as folder creation or message lookup failed.
	OutcomeFailed Outcome = "failed"
)

// Report describes one finished orchestration run.
type Report struct {
	State   State
	Path    State
	Outcome Outcome
	Channel harvest.ChannelSummary
	Folder  string
	// Tasks counts created download tasks.
	Tasks   int
	Summary scheduler.Summary
	// Err carries the locally recovered failure, if any.
	Err error
}
