package app

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"github.com/Additional-Code/orderboard/internal/auth"
	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/cache"
	"github.com/Additional-Code/orderboard/internal/client/restaurant"
	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/database"
	"github.com/Additional-Code/orderboard/internal/feed"
	"github.com/Additional-Code/orderboard/internal/logger"
	"github.com/Additional-Code/orderboard/internal/messaging"
	"github.com/Additional-Code/orderboard/internal/observability"
	repositorycatalog "github.com/Additional-Code/orderboard/internal/repository/catalog"
	repositoryorder "github.com/Additional-Code/orderboard/internal/repository/order"
	grpcserver "github.com/Additional-Code/orderboard/internal/server/grpc"
	httpserver "github.com/Additional-Code/orderboard/internal/server/http"
	servicecatalog "github.com/Additional-Code/orderboard/internal/service/catalog"
	serviceorder "github.com/Additional-Code/orderboard/internal/service/order"
	transporthttp "github.com/Additional-Code/orderboard/internal/transport/http"
	"github.com/Additional-Code/orderboard/internal/worker"
	workerboard "github.com/Additional-Code/orderboard/internal/worker/board"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
)

// Data adds the relational database for the restaurant API, migrations and
// seeding.
var Data = fx.Options(
	Core,
	database.Module,
)

// Board runs the staff order board: feed polling, board endpoints, the
// order event worker and gRPC health.
var Board = fx.Options(
	Core,
	restaurant.Module,
	fx.Provide(
		func(c *restaurant.Client) board.API { return c },
		func(c *restaurant.Client) feed.Source { return c },
		func(s *feed.Store) board.Feed { return s },
	),
	feed.Module,
	board.Module,
	httpserver.Module,
	transporthttp.BoardModule,
	worker.Module,
	workerboard.Module,
	grpcserver.Module,
	fx.Invoke(func(hs *health.Server, s *feed.Store, cfg config.Config, log *zap.Logger) {
		grpcserver.WatchFeed(hs, s, cfg.Observability.ServiceName, log.Named("health"))
	}),
)

// API runs the restaurant API the board consumes.
var API = fx.Options(
	Data,
	auth.Module,
	repositoryorder.Module,
	repositorycatalog.Module,
	serviceorder.Module,
	servicecatalog.Module,
	httpserver.Module,
	transporthttp.APIModule,
)

// Module is the default application wiring.
var Module = Board
