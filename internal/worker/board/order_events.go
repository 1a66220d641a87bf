package board

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/dto"
	"github.com/Additional-Code/orderboard/internal/feed"
	"github.com/Additional-Code/orderboard/internal/messaging"
	"github.com/Additional-Code/orderboard/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderboard/worker/board")

// Module registers the board's order event handler.
var Module = fx.Module("worker_board",
	fx.Provide(
		func(s *feed.Store) Refresher { return s },
		fx.Annotate(
			NewOrderEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Refresher schedules an early feed refresh.
type Refresher interface {
	RequestRefresh()
}

// NewOrderEventsHandler refreshes the feed whenever the restaurant API
// reports a change. Unknown event types are ignored.
func NewOrderEventsHandler(refresher Refresher, client messaging.Client, logger *zap.Logger) worker.HandlerRegistration {
	logger = logger.Named("order_events")
	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.board.orderEvent", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event dto.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return worker.Discard(fmt.Errorf("decode order event: %w", err))
		}
		span.SetAttributes(attribute.String("event.type", event.Type), attribute.Int64("order.id", event.OrderID))

		switch event.Type {
		case dto.EventOrderCreated, dto.EventOrderStatusChanged, dto.EventOrderItemsReplaced,
			dto.EventOrderDeleted, dto.EventTableItemStatusChanged:
			refresher.RequestRefresh()
			logger.Debug("order event processed",
				zap.String("event_id", event.ID),
				zap.String("type", event.Type),
				zap.Int64("order_id", event.OrderID),
				zap.String("status", event.Status),
			)
		default:
			logger.Warn("ignoring unknown order event", zap.String("type", event.Type))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   client.Topic(),
		Handler: handler,
	}
}
