package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/cache"
	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/dto"
	"github.com/Additional-Code/orderboard/internal/entity"
	"github.com/Additional-Code/orderboard/internal/messaging"
	catalogrepo "github.com/Additional-Code/orderboard/internal/repository/catalog"
	repo "github.com/Additional-Code/orderboard/internal/repository/order"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderboard/service/order")

// Repository is the persistence the service needs.
type Repository interface {
	List(ctx context.Context) ([]*entity.Order, error)
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	UpdateStatus(ctx context.Context, id int64, from, to string, at time.Time) error
	ReplaceItems(ctx context.Context, id int64, items []*entity.OrderItem, at time.Time) error
	Delete(ctx context.Context, id int64) error
	ListItemStatuses(ctx context.Context) ([]entity.TableItemStatus, error)
	UpsertItemStatus(ctx context.Context, status *entity.TableItemStatus) error
}

// Catalog answers reference-data lookups used for validation.
type Catalog interface {
	TableExists(ctx context.Context, number int) (bool, error)
	DishExists(ctx context.Context, id int64) (bool, error)
}

// Service encapsulates business logic around orders.
type Service struct {
	repo      Repository
	catalog   Catalog
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	now       func() time.Time
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Catalog    *catalogrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Catalog, p.Cache, p.Publisher, p.Config, p.Logger.Named("orders"))
}

// New constructs a Service from explicit collaborators.
func New(r Repository, c Catalog, store cache.Store, publisher messaging.Client, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      r,
		catalog:   c,
		cache:     store,
		cacheTTL:  cfg.Cache.DefaultTTL,
		logger:    logger,
		publisher: publisher,
		messaging: messagingConfig{
			enabled: cfg.Messaging.Enabled,
			topic:   cfg.Messaging.Topic,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.repoError(span, "failed to load order", err)
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", id), zap.Error(err))
	}

	return order, nil
}

// Create opens a pending order for a table. Every dish on it starts with a
// pending kitchen status at that table.
func (s *Service) Create(ctx context.Context, req dto.CreateOrderRequest) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int("order.table", req.TableNumber)))
	defer span.End()

	if len(req.Items) == 0 {
		return nil, errorbank.BadRequest("an order needs at least one item")
	}
	if err := s.requireTable(ctx, req.TableNumber); err != nil {
		return nil, err
	}

	now := s.now()
	order := &entity.Order{
		TableNumber: req.TableNumber,
		Status:      string(board.StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       make([]*entity.OrderItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		if err := s.validateItem(ctx, it.DishID, it.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, &entity.OrderItem{DishID: it.DishID, Quantity: it.Quantity, Instructions: it.Instructions})
	}

	if err := s.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	for _, it := range order.Items {
		status := &entity.TableItemStatus{TableNumber: order.TableNumber, DishID: it.DishID, Status: string(board.StatusPending), UpdatedAt: now}
		if err := s.repo.UpsertItemStatus(ctx, status); err != nil {
			s.logger.Warn("item status seed failed", zap.Int64("order_id", order.ID), zap.Int64("dish_id", it.DishID), zap.Error(err))
		}
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", order.ID), zap.Error(err))
	}

	s.publish(ctx, dto.OrderEvent{Type: dto.EventOrderCreated, OrderID: order.ID, TableNumber: order.TableNumber, Status: order.Status})
	return order, nil
}

// Transition moves an order into status to. The order must currently be in
// the status immediately before to; anything else is a conflict.
func (s *Service) Transition(ctx context.Context, id int64, to board.Status) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Transition", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.to", string(to)),
	))
	defer span.End()

	from, ok := previous(to)
	if !ok {
		return nil, errorbank.BadRequest("unsupported transition", errorbank.WithDetail("status", string(to)))
	}

	if err := s.repo.UpdateStatus(ctx, id, string(from), string(to), s.now()); err != nil {
		if errors.Is(err, repo.ErrStatusMismatch) {
			return nil, errorbank.Conflict("order is not "+string(from),
				errorbank.WithCause(err), errorbank.WithDetail("expected", string(from)))
		}
		return nil, s.repoError(span, "failed to update order status", err)
	}
	s.invalidate(ctx, id)

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.repoError(span, "failed to load order", err)
	}

	s.logger.Info("order status changed", zap.Int64("order_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	s.publish(ctx, dto.OrderEvent{Type: dto.EventOrderStatusChanged, OrderID: id, TableNumber: order.TableNumber, Status: order.Status})
	return order, nil
}

// UpdateOrDelete replaces a pending order's items. An empty list deletes
// the order. It reports whether the order was deleted.
func (s *Service) UpdateOrDelete(ctx context.Context, id int64, items []dto.ItemQuantity) (deleted bool, err error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateOrDelete", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, s.repoError(span, "failed to load order", err)
	}
	if order.Status != string(board.StatusPending) {
		return false, errorbank.Unprocessable("only pending orders can be changed", errorbank.WithDetail("status", order.Status))
	}

	if len(items) == 0 {
		if err := s.repo.Delete(ctx, id); err != nil {
			return false, s.repoError(span, "failed to delete order", err)
		}
		s.invalidate(ctx, id)
		s.logger.Info("order deleted", zap.Int64("order_id", id))
		s.publish(ctx, dto.OrderEvent{Type: dto.EventOrderDeleted, OrderID: id, TableNumber: order.TableNumber})
		return true, nil
	}

	instructions := make(map[int64]string, len(order.Items))
	for _, it := range order.Items {
		if _, ok := instructions[it.DishID]; !ok {
			instructions[it.DishID] = it.Instructions
		}
	}
	replacement := make([]*entity.OrderItem, 0, len(items))
	for _, it := range items {
		if err := s.validateItem(ctx, it.DishID, it.Quantity); err != nil {
			return false, err
		}
		replacement = append(replacement, &entity.OrderItem{DishID: it.DishID, Quantity: it.Quantity, Instructions: instructions[it.DishID]})
	}

	if err := s.repo.ReplaceItems(ctx, id, replacement, s.now()); err != nil {
		return false, s.repoError(span, "failed to replace order items", err)
	}
	s.invalidate(ctx, id)
	s.logger.Info("order items replaced", zap.Int64("order_id", id), zap.Int("items", len(replacement)))
	s.publish(ctx, dto.OrderEvent{Type: dto.EventOrderItemsReplaced, OrderID: id, TableNumber: order.TableNumber, Status: order.Status})
	return false, nil
}

// TableStats groups kitchen item statuses by table number.
func (s *Service) TableStats(ctx context.Context) ([]dto.TableStatsResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.TableStats")
	defer span.End()

	statuses, err := s.repo.ListItemStatuses(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load table stats", errorbank.WithCause(err))
	}

	byTable := make(map[int]*dto.TableStatsResponse)
	for _, st := range statuses {
		entry, ok := byTable[st.TableNumber]
		if !ok {
			entry = &dto.TableStatsResponse{TableNumber: st.TableNumber, Items: []dto.TableItemStatus{}}
			byTable[st.TableNumber] = entry
		}
		entry.Items = append(entry.Items, dto.TableItemStatus{DishID: st.DishID, ItemStatus: st.Status})
	}

	out := make([]dto.TableStatsResponse, 0, len(byTable))
	for _, entry := range byTable {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

// SetItemStatus records the kitchen state of a dish at a table.
func (s *Service) SetItemStatus(ctx context.Context, table int, dishID int64, status string) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SetItemStatus", trace.WithAttributes(
		attribute.Int("table.number", table),
		attribute.Int64("dish.id", dishID),
	))
	defer span.End()

	parsed, err := board.ParseStatus(status)
	if err != nil {
		return errorbank.BadRequest("unknown item status", errorbank.WithCause(err), errorbank.WithDetail("status", status))
	}
	if err := s.requireTable(ctx, table); err != nil {
		return err
	}
	if err := s.validateItem(ctx, dishID, 1); err != nil {
		return err
	}

	record := &entity.TableItemStatus{TableNumber: table, DishID: dishID, Status: string(parsed), UpdatedAt: s.now()}
	if err := s.repo.UpsertItemStatus(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to store item status", errorbank.WithCause(err))
	}

	s.publish(ctx, dto.OrderEvent{Type: dto.EventTableItemStatusChanged, TableNumber: table, DishID: dishID, Status: record.Status})
	return nil
}

func previous(to board.Status) (board.Status, bool) {
	for _, s := range board.Statuses {
		if next, ok := s.Next(); ok && next == to {
			return s, true
		}
	}
	return "", false
}

func (s *Service) requireTable(ctx context.Context, number int) error {
	ok, err := s.catalog.TableExists(ctx, number)
	if err != nil {
		return errorbank.Internal("failed to look up table", errorbank.WithCause(err))
	}
	if !ok {
		return errorbank.Unprocessable("unknown table", errorbank.WithDetail("table_number", number))
	}
	return nil
}

func (s *Service) validateItem(ctx context.Context, dishID int64, quantity int) error {
	if quantity <= 0 {
		return errorbank.BadRequest("quantity must be positive", errorbank.WithDetail("dish_id", dishID))
	}
	ok, err := s.catalog.DishExists(ctx, dishID)
	if err != nil {
		return errorbank.Internal("failed to look up dish", errorbank.WithCause(err))
	}
	if !ok {
		return errorbank.Unprocessable("unknown dish", errorbank.WithDetail("dish_id", dishID))
	}
	return nil
}

func (s *Service) repoError(span trace.Span, message string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return errorbank.NotFound("order not found", errorbank.WithCause(err))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal(message, errorbank.WithCause(err))
}

func (s *Service) publish(ctx context.Context, event dto.OrderEvent) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now()

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	key := fmt.Sprintf("table-%d", event.TableNumber)
	if err := s.publisher.Publish(ctx, []byte(key), payload); err != nil {
		s.logger.Error("publish order event", zap.String("type", event.Type), zap.String("topic", s.messaging.topic), zap.Error(err))
	}
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
}
