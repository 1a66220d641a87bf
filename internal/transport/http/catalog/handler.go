package catalog

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderboard/internal/auth"
	"github.com/Additional-Code/orderboard/internal/dto"
	"github.com/Additional-Code/orderboard/internal/entity"
	"github.com/Additional-Code/orderboard/internal/presentation/http/response"
	service "github.com/Additional-Code/orderboard/internal/service/catalog"
)

// Module wires HTTP catalog handlers.
var Module = fx.Options(
	fx.Provide(func(svc *service.Service) *Handler { return NewHandler(svc) }),
	fx.Invoke(func(e *echo.Echo, h *Handler, v *auth.Verifier) {
		Register(e, h, v)
	}),
)

// Service lists reference data.
type Service interface {
	Dishes(ctx context.Context) ([]entity.Dish, error)
	Tables(ctx context.Context) ([]entity.Table, error)
}

// Handler exposes the menu and the floor plan.
type Handler struct {
	svc Service
}

// NewHandler constructs a catalog Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler, v *auth.Verifier) {
	e.GET("/dishes", h.dishes, auth.Require(v))
	e.GET("/tables", h.tables, auth.Require(v))
}

func (h *Handler) dishes(c echo.Context) error {
	b := response.New(c)

	dishes, err := h.svc.Dishes(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.DishResponse, 0, len(dishes))
	for _, d := range dishes {
		out = append(out, dto.DishResponse{ID: d.ID, Name: d.Name, Price: d.Price})
	}
	return b.WithData(out).Build()
}

func (h *Handler) tables(c echo.Context) error {
	b := response.New(c)

	tables, err := h.svc.Tables(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.TableResponse, 0, len(tables))
	for _, t := range tables {
		out = append(out, dto.TableResponse{ID: t.ID, Number: t.Number})
	}
	return b.WithData(out).Build()
}
