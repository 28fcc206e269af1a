package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/ledger"
)

var (
	errAuthRequired = errors.New("authentication required")
	errInternal     = errors.New("internal error")
)

// connectError maps engine errors onto Connect codes. Unexpected errors are
// logged and replaced by a generic message.
func connectError(logger *slog.Logger, op string, err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, ledger.ErrValidation):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ledger.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, ledger.ErrForbidden):
		code = connect.CodePermissionDenied
	case errors.Is(err, ledger.ErrConflict):
		code = connect.CodeAlreadyExists
	case errors.Is(err, ledger.ErrInvalidCredentials):
		code = connect.CodeUnauthenticated
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case ledger.IsRetryable(err):
		code = connect.CodeUnavailable
	default:
		logger.Error(op+" failed", "error", err)
		return connect.NewError(connect.CodeInternal, errInternal)
	}
	logger.Debug(op+" rejected", "code", code, "error", err)
	return connect.NewError(code, err)
}
