package board

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/observability"
)

// Module provides the board to Fx, exports its in-flight gauges and drains
// reconciliations on stop.
var Module = fx.Options(
	fx.Provide(NewFromConfig),
	fx.Invoke(RegisterGauges),
	fx.Invoke(func(lc fx.Lifecycle, b *Board) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return b.Close(ctx)
			},
		})
	}),
)

// Params defines dependencies for constructing Board.
type Params struct {
	fx.In

	API    API
	Feed   Feed
	Config config.Config
	Logger *zap.Logger
}

// NewFromConfig wires a Board from configuration.
func NewFromConfig(p Params) *Board {
	return New(p.API, p.Feed, p.Logger.Named("board"), Options{
		PollInterval:     p.Config.Board.PollInterval,
		ReconcileTimeout: p.Config.Board.ReconcileTimeout,
		DefaultTab:       Status(p.Config.Board.DefaultTab),
	})
}

// RegisterGauges exports the number of orders with a transition in flight
// and the number showing an unconfirmed status.
func RegisterGauges(obs *observability.Manager, b *Board) error {
	return obs.RegisterGauges("github.com/Additional-Code/orderboard/board",
		observability.Gauge{
			Name:        "board.loading_orders",
			Description: "Orders with a status transition in flight.",
			Observe:     func() int64 { loading, _ := b.InFlight(); return int64(loading) },
		},
		observability.Gauge{
			Name:        "board.unconfirmed_orders",
			Description: "Orders showing a status the feed never confirmed.",
			Observe:     func() int64 { _, unconfirmed := b.InFlight(); return int64(unconfirmed) },
		},
	)
}
