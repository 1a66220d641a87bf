package board

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderboard/internal/auth"
	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/presentation/http/response"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderboard/transport/http/board")

// Refresher forces a feed reload.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Handler exposes the board over HTTP.
type Handler struct {
	board     *board.Board
	refresher Refresher
}

// NewHandler constructs a board Handler.
func NewHandler(b *board.Board, refresher Refresher) *Handler {
	return &Handler{board: b, refresher: refresher}
}

// TabsResponse is the body of GET /board.
type TabsResponse struct {
	Tab    board.Status         `json:"tab"`
	Counts map[board.Status]int `json:"counts"`
	Orders []board.ViewOrder    `json:"orders"`
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/board", auth.Forward())
	g.GET("", h.tabs)
	g.GET("/orders/:id", h.order)
	g.POST("/orders/:id/advance", h.advance)
	g.DELETE("/orders/:id/items/:dishId", h.removeItem)
	g.POST("/refresh", h.refresh)
}

func (h *Handler) tabs(c echo.Context) error {
	b := response.New(c)

	tabs, err := h.board.Tabs(board.Status(c.QueryParam("tab")))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(TabsResponse{
		Tab:    tabs.Selected(),
		Counts: tabs.Counts(),
		Orders: tabs.Visible(),
	}).Build()
}

func (h *Handler) order(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	view, err := h.board.Order(id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) advance(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "board.advance", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	view, err := h.board.Advance(ctx, auth.FromContext(c), id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusAccepted).WithData(view).Build()
}

func (h *Handler) removeItem(c echo.Context) error {
	b := response.New(c)

	orderID, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	dishID, err := pathID(c, "dishId")
	if err != nil {
		return b.WithError(err).Build()
	}
	confirmed, err := confirmParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "board.removeItem", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("dish.id", dishID),
		attribute.Bool("confirmed", confirmed),
	))
	defer span.End()

	if err := h.board.RemoveItem(ctx, auth.FromContext(c), orderID, dishID, board.Confirmed(confirmed)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusAccepted).WithData(map[string]int64{"order_id": orderID, "dish_id": dishID}).Build()
}

func (h *Handler) refresh(c echo.Context) error {
	b := response.New(c)

	if err := h.refresher.Refresh(c.Request().Context()); err != nil {
		return b.WithError(errorbank.Unavailable("feed refresh failed", errorbank.WithCause(err))).Build()
	}
	return b.WithData(map[string]int{"orders": len(h.board.Orders())}).Build()
}

// confirmParam reads the confirm query flag. Absent means not confirmed.
func confirmParam(c echo.Context) (bool, error) {
	raw := c.QueryParam("confirm")
	if raw == "" {
		return false, nil
	}
	confirmed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errorbank.BadRequest("invalid confirm flag", errorbank.WithCause(err), errorbank.WithDetail("confirm", raw))
	}
	return confirmed, nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err), errorbank.WithDetail(name, c.Param(name)))
	}
	return id, nil
}
