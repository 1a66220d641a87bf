package board

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderboard/internal/feed"
)

// Module wires HTTP board handlers.
var Module = fx.Options(
	fx.Provide(
		func(s *feed.Store) Refresher { return s },
		NewHandler,
	),
	fx.Invoke(func(e *echo.Echo, h *Handler) {
		Register(e, h)
	}),
)
