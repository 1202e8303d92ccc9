package harvest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestTransferErrorFormattingAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("FLOOD_WAIT")
	err := fmt.Errorf("fetch: %w", &TransferError{
		MessageID:  7,
		Kind:       TransferErrorKindRateLimited,
		RetryAfter: 3 * time.Second,
		Code:       420,
		Type:       "FLOOD_WAIT",
		Cause:      cause,
	})

	transferErr, ok := AsTransferError(err)
	if !ok {
		t.Fatal("expected transfer error")
	}
	if transferErr.Kind != TransferErrorKindRateLimited {
		t.Fatalf("kind = %q, want rate_limited", transferErr.Kind)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}

	text := err.Error()
	for _, want := range []string{"message_id=7", "kind=rate_limited", "retry_after=3s", "code=420", "type=FLOOD_WAIT"} {
		if !strings.Contains(text, want) {
			t.Fatalf("error text %q missing %q", text, want)
		}
	}
}

func TestAsTransferErrorMiss(t *testing.T) {
	t.Parallel()

	if _, ok := AsTransferError(nil); ok {
		t.Fatal("nil error classified as transfer error")
	}
	if _, ok := AsTransferError(errors.New("plain")); ok {
		t.Fatal("plain error classified as transfer error")
	}
}
