package telegram

import (
	"context"
	"errors"
	"strings"

	"tg-harvest/pkg/harvest"

	"github.com/gotd/td/tgerr"
)

func mapTelegramTransferError(messageID int, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := harvest.AsTransferError(err); ok {
		return err
	}

	transferErr := &harvest.TransferError{
		MessageID: messageID,
		Kind:      harvest.TransferErrorKindUnknown,
		Cause:     err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		transferErr.Kind = harvest.TransferErrorKindRateLimited
		transferErr.RetryAfter = retryAfter
		if rpcErr, hasRPC := tgerr.As(err); hasRPC {
			transferErr.Code = rpcErr.Code
			transferErr.Type = rpcErr.Type
		}

		return transferErr
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			transferErr.Kind = harvest.TransferErrorKindTemporary
		}
		return transferErr
	}

	transferErr.Code = rpcErr.Code
	transferErr.Type = rpcErr.Type
	transferErr.Kind = classifyTelegramRPCError(rpcErr)

	return transferErr
}

func classifyTelegramRPCError(rpcErr *tgerr.Error) harvest.TransferErrorKind {
	if rpcErr == nil {
		return harvest.TransferErrorKindUnknown
	}

	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD") {
		return harvest.TransferErrorKindRateLimited
	}
	if strings.HasPrefix(errorType, "FILE_REFERENCE_") {
		return harvest.TransferErrorKindTemporary
	}

	switch rpcErr.Code {
	case 303:
		return harvest.TransferErrorKindTemporary
	case 400, 401, 403, 404, 405, 406:
		return harvest.TransferErrorKindPermanent
	}
	if rpcErr.Code >= 500 {
		return harvest.TransferErrorKindTemporary
	}

	return harvest.TransferErrorKindUnknown
}

// isInviteUnusable reports RPC errors meaning an invite hash cannot be used.
func isInviteUnusable(err error) bool {
	return tgerr.Is(err, "INVITE_HASH_INVALID", "INVITE_HASH_EXPIRED", "INVITE_HASH_EMPTY")
}
