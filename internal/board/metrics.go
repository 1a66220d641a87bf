package board

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/Additional-Code/orderboard/board")

type metrics struct {
	transitions     metric.Int64Counter
	reconciliations metric.Int64Counter
	removals        metric.Int64Counter
}

func newMetrics() *metrics {
	m := &metrics{}
	m.transitions, _ = meter.Int64Counter("board.transitions",
		metric.WithDescription("Order status transitions requested from the board, by outcome."))
	m.reconciliations, _ = meter.Int64Counter("board.reconciliations",
		metric.WithDescription("Optimistic status reconciliations, by outcome."))
	m.removals, _ = meter.Int64Counter("board.item_removals",
		metric.WithDescription("Item removals requested from the board, by outcome."))
	return m
}

func (m *metrics) transition(ctx context.Context, outcome string) {
	add(ctx, m.transitions, outcome)
}

func (m *metrics) reconciled(ctx context.Context, outcome string) {
	add(ctx, m.reconciliations, outcome)
}

func (m *metrics) removal(ctx context.Context, outcome string) {
	add(ctx, m.removals, outcome)
}

func add(ctx context.Context, c metric.Int64Counter, outcome string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
