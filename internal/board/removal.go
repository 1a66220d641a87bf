package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

// Confirmer is the yes/no gate in front of a side-effecting action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Confirmed answers every prompt with answer.
func Confirmed(answer bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) (bool, error) {
		return answer, nil
	})
}

// RemoveItem drops every line of dishID from a pending order by replacing
// the order's item list remotely. No local patch is applied; the board
// shows the removal once the feed reports it.
func (b *Board) RemoveItem(ctx context.Context, cred Credential, orderID, dishID int64, confirm Confirmer) error {
	logger := b.logger.With(
		zap.Int64("order_id", orderID),
		zap.Int64("dish_id", dishID),
		zap.String("action_id", uuid.NewString()),
		zap.String("staff", cred.Subject),
	)
	ctx, span := boardTracer.Start(ctx, "Board.RemoveItem", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("dish.id", dishID),
	))
	defer span.End()

	if cred.Empty() {
		logger.Warn("item removal aborted: missing credential")
		b.metrics.removal(ctx, "missing_credential")
		return errorbank.Unauthorized("missing credential", errorbank.WithCause(ErrMissingCredential))
	}

	snap := b.feed.Snapshot()
	b.mu.Lock()
	view, ok := b.viewLocked(snap, orderID)
	b.mu.Unlock()
	if !ok {
		return errorbank.NotFound("order not found", errorbank.WithCause(ErrOrderNotFound))
	}
	item, ok := view.Item(dishID)
	if !ok {
		return errorbank.NotFound("item not found", errorbank.WithCause(ErrItemNotFound))
	}
	if !view.CanRemove(item) {
		b.metrics.removal(ctx, "not_removable")
		return errorbank.Unprocessable("item can no longer be removed",
			errorbank.WithCause(ErrNotRemovable),
			errorbank.WithDetail("order_status", string(view.Status)),
			errorbank.WithDetail("item_status", string(item.Status)))
	}

	accepted := false
	if confirm != nil {
		var err error
		accepted, err = confirm.Confirm(ctx, fmt.Sprintf("Remove %s from order %d?", item.Name, orderID))
		if err != nil {
			logger.Warn("removal confirmation failed", zap.Error(err))
			accepted = false
		}
	}
	if !accepted {
		b.metrics.removal(ctx, "declined")
		return errorbank.Unprocessable("removal not confirmed", errorbank.WithCause(ErrNotConfirmed))
	}

	order, _ := snap.Order(orderID)
	remaining := make([]ItemQuantity, 0, len(order.Items))
	for _, li := range order.Items {
		if li.DishID == dishID {
			continue
		}
		remaining = append(remaining, ItemQuantity{DishID: li.DishID, Quantity: li.Quantity})
	}

	if err := b.api.UpdateOrDeleteOrder(ctx, cred, orderID, remaining); err != nil {
		logger.Error("item removal failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote call failed")
		b.metrics.removal(ctx, "failed")
		return remoteError("failed to remove item", err)
	}

	logger.Info("item removed", zap.Int("remaining_items", len(remaining)))
	b.metrics.removal(ctx, "applied")
	b.requestRefresh()
	return nil
}
