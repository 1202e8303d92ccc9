package harvest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidReferenceFormat indicates input that cannot name a message or group.
	ErrInvalidReferenceFormat = errors.New("invalid reference format")
	// ErrChannelNotFound indicates no visible channel matched a private channel id.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrEntityResolution indicates a group identifier that is invalid, expired or inaccessible.
	ErrEntityResolution = errors.New("entity resolution failed")
	// ErrMessageNotFound indicates the addressed message does not exist or is not visible.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNoAttachment indicates a message without a downloadable attachment.
	ErrNoAttachment = errors.New("no attachment")
	// ErrAuthentication indicates the platform session could not be signed in.
	ErrAuthentication = errors.New("authentication failed")
	// ErrEmptyTransferResult indicates a transfer that reported no resulting path.
	ErrEmptyTransferResult = errors.New("transfer produced no file")
)

// TransferErrorKind describes coarse-grained transfer failure classification.
type TransferErrorKind string

const (
	// TransferErrorKindRateLimited indicates platform-side rate limiting.
	TransferErrorKindRateLimited TransferErrorKind = "rate_limited"
	// TransferErrorKindTemporary indicates transient failure.
	TransferErrorKindTemporary TransferErrorKind = "temporary"
	// TransferErrorKindPermanent indicates failure unlikely to succeed on retry.
	TransferErrorKindPermanent TransferErrorKind = "permanent"
	// TransferErrorKindUnknown indicates unclassified failure.
	TransferErrorKindUnknown TransferErrorKind = "unknown"
)

// TransferError carries structured metadata for one failed attachment transfer.
//
// The retry loop treats every TransferError the same way; the metadata exists
// for operator-facing reports.
type TransferError struct {
	// MessageID identifies the message whose attachment failed.
	MessageID int
	// Kind classifies the failure.
	Kind TransferErrorKind
	// RetryAfter carries the platform's suggested delay for rate-limited failures when known.
	RetryAfter time.Duration
	// Code carries the platform RPC code when known.
	Code int
	// Type carries the platform error type token when known.
	Type string
	// Cause is the wrapped platform/transport error.
	Cause error
}

// Error returns one operator-readable failure summary.
func (e *TransferError) Error() string {
	if e == nil {
		return "<nil>"
	}

	fields := make([]string, 0, 5)
	if e.MessageID != 0 {
		fields = append(fields, fmt.Sprintf("message_id=%d", e.MessageID))
	}
	if kind := strings.TrimSpace(string(e.Kind)); kind != "" {
		fields = append(fields, "kind="+kind)
	}
	if e.RetryAfter > 0 {
		fields = append(fields, "retry_after="+e.RetryAfter.String())
	}
	if e.Code != 0 {
		fields = append(fields, fmt.Sprintf("code=%d", e.Code))
	}
	if errorType := strings.TrimSpace(e.Type); errorType != "" {
		fields = append(fields, "type="+errorType)
	}

	summary := "transfer error"
	if len(fields) > 0 {
		summary += ": " + strings.Join(fields, " ")
	}
	if e.Cause == nil {
		return summary
	}

	return summary + ": " + e.Cause.Error()
}

// Unwrap returns the wrapped root cause.
func (e *TransferError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsTransferError extracts one TransferError from wrapped error chains.
func AsTransferError(err error) (*TransferError, bool) {
	if err == nil {
		return nil, false
	}

	var transferErr *TransferError
	if errors.As(err, &transferErr) {
		return transferErr, true
	}

	return nil, false
}
