package order

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
	"github.com/Additional-Code/orderboard/internal/dto"
	"github.com/Additional-Code/orderboard/internal/entity"
	"github.com/Additional-Code/orderboard/internal/presentation/http/response"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderboard/transport/http/order")

// Service is the order logic behind the handlers.
type Service interface {
	List(ctx context.Context) ([]*entity.Order, error)
	Get(ctx context.Context, id int64) (*entity.Order, error)
	Create(ctx context.Context, req dto.CreateOrderRequest) (*entity.Order, error)
	Transition(ctx context.Context, id int64, to board.Status) (*entity.Order, error)
	UpdateOrDelete(ctx context.Context, id int64, items []dto.ItemQuantity) (bool, error)
	TableStats(ctx context.Context) ([]dto.TableStatsResponse, error)
	SetItemStatus(ctx context.Context, table int, dishID int64, status string) error
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance. Every route requires a bearer
// token accepted by v.
func Register(e *echo.Echo, h *Handler, v *auth.Verifier) {
	g := e.Group("/orders", auth.Require(v))
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("", h.create)
	g.PUT("/:id", h.updateOrDelete)
	g.POST("/:id/preparing", h.transition(board.StatusPreparing))
	g.POST("/:id/served", h.transition(board.StatusServed))
	g.POST("/:id/ready", h.transition(board.StatusReady))

	t := e.Group("/tables", auth.Require(v))
	t.GET("/stats", h.tableStats)
	t.PUT("/:number/items/:dishId/status", h.setItemStatus)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	orders, err := h.svc.List(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toDTO(o))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.TableNumber <= 0 {
		return b.WithError(errorbank.BadRequest("table_number is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.Int("order.table", payload.TableNumber),
	))
	defer span.End()

	order, err := h.svc.Create(ctx, payload)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(toDTO(order)).Build()
}

func (h *Handler) transition(to board.Status) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := response.New(c)

		id, err := parseID(c.Param("id"), "id")
		if err != nil {
			return b.WithError(err).Build()
		}

		ctx, span := httpTracer.Start(c.Request().Context(), "orders.transition", trace.WithAttributes(
			attribute.Int64("order.id", id),
			attribute.String("order.status.to", string(to)),
			attribute.String("staff", auth.FromContext(c).Subject),
		))
		defer span.End()

		order, err := h.svc.Transition(ctx, id, to)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithData(toDTO(order)).Build()
	}
}

func (h *Handler) updateOrDelete(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.UpdateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateOrDelete", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.Int("order.items", len(payload.Items)),
	))
	defer span.End()

	deleted, err := h.svc.UpdateOrDelete(ctx, id, payload.Items)
	if err != nil {
		return b.WithError(err).Build()
	}
	if deleted {
		return b.WithStatus(http.StatusNoContent).Build()
	}
	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) tableStats(c echo.Context) error {
	b := response.New(c)

	stats, err := h.svc.TableStats(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(stats).Build()
}

func (h *Handler) setItemStatus(c echo.Context) error {
	b := response.New(c)

	number, err := parseID(c.Param("number"), "number")
	if err != nil {
		return b.WithError(err).Build()
	}
	dishID, err := parseID(c.Param("dishId"), "dishId")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.ItemStatusRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	if err := h.svc.SetItemStatus(c.Request().Context(), int(number), dishID, payload.Status); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.TableItemStatus{DishID: dishID, ItemStatus: payload.Status}).Build()
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err), errorbank.WithDetail(name, raw))
	}
	return id, nil
}

func toDTO(order *entity.Order) dto.OrderResponse {
	items := make([]dto.OrderItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, dto.OrderItem{DishID: it.DishID, Quantity: it.Quantity, Instructions: it.Instructions})
	}
	return dto.OrderResponse{
		ID:          order.ID,
		TableNumber: order.TableNumber,
		Status:      order.Status,
		Items:       items,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
