package board

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

// Advance moves an order one step along pending, preparing, served, ready.
// On success the returned row already shows the next status; the feed is
// then polled in the background until it agrees or the reconcile timeout
// elapses.
func (b *Board) Advance(ctx context.Context, cred Credential, orderID int64) (ViewOrder, error) {
	logger := b.logger.With(
		zap.Int64("order_id", orderID),
		zap.String("action_id", uuid.NewString()),
		zap.String("staff", cred.Subject),
	)
	ctx, span := boardTracer.Start(ctx, "Board.Advance", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	if cred.Empty() {
		logger.Warn("advance aborted: missing credential")
		b.metrics.transition(ctx, "missing_credential")
		return ViewOrder{}, errorbank.Unauthorized("missing credential", errorbank.WithCause(ErrMissingCredential))
	}

	snap := b.feed.Snapshot()

	b.mu.Lock()
	order, ok := snap.Order(orderID)
	if !ok {
		b.mu.Unlock()
		return ViewOrder{}, errorbank.NotFound("order not found", errorbank.WithCause(ErrOrderNotFound))
	}
	// Retrying an unconfirmed status starts again from what the feed holds.
	if p, ok := b.patches[orderID]; ok && p.unconfirmed {
		if _, busy := b.loading[orderID]; !busy {
			delete(b.patches, orderID)
		}
	}
	view, _ := b.viewLocked(snap, orderID)
	current := view.Status
	next, ok := current.Next()
	if !ok {
		b.mu.Unlock()
		return ViewOrder{}, errorbank.Unprocessable("order is not actionable",
			errorbank.WithCause(ErrNotActionable), errorbank.WithDetail("status", string(current)))
	}
	if _, busy := b.loading[orderID]; busy {
		b.mu.Unlock()
		b.metrics.transition(ctx, "in_flight")
		return ViewOrder{}, errorbank.Conflict("order transition already in flight", errorbank.WithCause(ErrTransitionInFlight))
	}
	b.loading[orderID] = struct{}{}
	b.mu.Unlock()

	span.SetAttributes(attribute.String("order.status.from", string(current)), attribute.String("order.status.to", string(next)))

	if err := b.callTransition(ctx, cred, orderID, current); err != nil {
		b.mu.Lock()
		delete(b.loading, orderID)
		b.mu.Unlock()

		logger.Error("advance failed", zap.String("status", string(current)), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote call failed")
		b.metrics.transition(ctx, "failed")
		return ViewOrder{}, remoteError("failed to advance order", err)
	}

	b.mu.Lock()
	b.patches[orderID] = patch{status: next, base: order.Status, baseUpdated: order.UpdatedAt}
	view, _ = b.viewLocked(snap, orderID)
	if b.closed {
		delete(b.loading, orderID)
		view.Loading = false
		b.mu.Unlock()
	} else {
		b.wg.Add(1)
		b.mu.Unlock()
		go b.reconcile(orderID, next, logger)
	}

	logger.Info("order advanced", zap.String("from", string(current)), zap.String("to", string(next)))
	b.metrics.transition(ctx, "applied")
	b.requestRefresh()
	return view, nil
}

func (b *Board) callTransition(ctx context.Context, cred Credential, orderID int64, current Status) error {
	switch current {
	case StatusPending:
		return b.api.MarkOrderPreparing(ctx, cred, orderID)
	case StatusPreparing:
		return b.api.MarkOrderServed(ctx, cred, orderID)
	case StatusServed:
		return b.api.MarkOrderReady(ctx, cred, orderID)
	default:
		return ErrNotActionable
	}
}

// reconcile races a repeating feed check against the reconcile timeout.
// Both share one context and stop together once either fires.
func (b *Board) reconcile(orderID int64, expected Status, logger *zap.Logger) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, b.opts.ReconcileTimeout)
	defer cancel()

	confirmed := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		b.pollFeed(ctx, orderID, expected, confirmed)
	}()

	outcome := "confirmed"
	select {
	case <-confirmed:
	case <-ctx.Done():
		outcome = "timeout"
		if errors.Is(ctx.Err(), context.Canceled) {
			outcome = "cancelled"
		}
	}
	cancel()
	<-polled

	latest := b.feed.Snapshot()
	b.mu.Lock()
	delete(b.loading, orderID)
	if order, ok := latest.Order(orderID); !ok {
		delete(b.patches, orderID)
	} else if p, ok := b.patches[orderID]; ok && p.superseded(order) {
		delete(b.patches, orderID)
	}
	if p, ok := b.patches[orderID]; ok && p.status == expected {
		switch outcome {
		case "confirmed":
			delete(b.patches, orderID)
		case "timeout":
			p.unconfirmed = true
			b.patches[orderID] = p
		}
	}
	b.mu.Unlock()

	if outcome == "timeout" {
		logger.Warn("order status not confirmed by feed",
			zap.String("expected", string(expected)),
			zap.Duration("timeout", b.opts.ReconcileTimeout))
	} else {
		logger.Debug("reconciliation finished", zap.String("outcome", outcome))
	}
	b.metrics.reconciled(context.Background(), outcome)
}

func (b *Board) pollFeed(ctx context.Context, orderID int64, expected Status, confirmed chan<- struct{}) {
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if order, ok := b.feed.Snapshot().Order(orderID); ok && order.Status == expected {
				close(confirmed)
				return
			}
		}
	}
}
