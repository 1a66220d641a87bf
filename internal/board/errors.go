package board

import (
	"errors"
	"fmt"

	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var (
	// ErrMissingCredential aborts an action before any remote call.
	ErrMissingCredential = errors.New("missing credential")
	// ErrOrderNotFound means the order is not on the board.
	ErrOrderNotFound = errors.New("order not found")
	// ErrItemNotFound means the dish is not part of the order.
	ErrItemNotFound = errors.New("item not found")
	// ErrNotActionable means the order has no next status.
	ErrNotActionable = errors.New("order has no next status")
	// ErrTransitionInFlight guards against double submission for one order.
	ErrTransitionInFlight = errors.New("transition already in flight")
	// ErrNotRemovable means the order or the item has left pending.
	ErrNotRemovable = errors.New("item can no longer be removed")
	// ErrNotConfirmed means the removal was declined.
	ErrNotConfirmed = errors.New("removal not confirmed")
	// ErrRemoteCall wraps failures of the restaurant API.
	ErrRemoteCall = errors.New("remote call failed")
)

func remoteError(message string, err error) *errorbank.AppError {
	kind := errorbank.KindUnavailable
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) && appErr.Kind() != errorbank.KindInternal {
		kind = appErr.Kind()
	}
	return errorbank.New(kind, message, errorbank.WithCause(fmt.Errorf("%w: %w", ErrRemoteCall, err)))
}
