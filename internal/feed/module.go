package feed

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/config"
)

// Module provides the feed store and runs its refresh loop.
var Module = fx.Module("feed",
	fx.Provide(func(src Source, cfg config.Config, logger *zap.Logger) *Store {
		return NewStore(src, board.Credential{Token: cfg.Restaurant.Token, Subject: cfg.Observability.ServiceName}, logger.Named("feed"))
	}),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, store *Store, cfg config.Config, logger *zap.Logger) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Run(ctx, cfg.Board.FeedRefreshInterval)
			}()
			logger.Info("feed refresh loop started", zap.Duration("interval", cfg.Board.FeedRefreshInterval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-done:
				return nil
			}
		},
	})
}
