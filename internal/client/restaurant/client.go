package restaurant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/cache"
	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/dto"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var clientTracer = otel.Tracer("github.com/Additional-Code/orderboard/client/restaurant")

const (
	dishesCacheKey = "restaurant:dishes"
	tablesCacheKey = "restaurant:tables"
)

// Module provides the restaurant API client to Fx.
var Module = fx.Provide(NewFromConfig)

// Client talks to the restaurant API. Dishes and tables are reference data
// and are served from the cache when present.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Client.
type Params struct {
	fx.In

	Config config.Config
	Cache  cache.Store
	Logger *zap.Logger
}

// NewFromConfig wires a Client from configuration.
func NewFromConfig(p Params) *Client {
	return New(p.Config.Restaurant.BaseURL, &http.Client{Timeout: p.Config.Restaurant.Timeout},
		p.Cache, p.Config.Cache.DefaultTTL, p.Logger.Named("restaurant"))
}

// New constructs a Client. A nil cache disables reference-data caching.
func New(baseURL string, httpClient *http.Client, store cache.Store, cacheTTL time.Duration, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  baseURL,
		http:     httpClient,
		cache:    store,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListOrders reads the order feed. Orders with an unknown status are skipped.
func (c *Client) ListOrders(ctx context.Context, cred board.Credential) ([]board.Order, error) {
	var payload []dto.OrderResponse
	if err := c.do(ctx, cred, http.MethodGet, "/orders", nil, &payload); err != nil {
		return nil, err
	}

	orders := make([]board.Order, 0, len(payload))
	for _, o := range payload {
		status, err := board.ParseStatus(o.Status)
		if err != nil {
			c.logger.Warn("skipping order with unknown status", zap.Int64("order_id", o.ID), zap.String("status", o.Status))
			continue
		}
		items := make([]board.LineItem, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, board.LineItem{DishID: it.DishID, Quantity: it.Quantity, Instructions: it.Instructions})
		}
		orders = append(orders, board.Order{
			ID:          o.ID,
			TableNumber: o.TableNumber,
			Status:      status,
			Items:       items,
			CreatedAt:   o.CreatedAt,
			UpdatedAt:   o.UpdatedAt,
		})
	}
	return orders, nil
}

// ListDishes reads the menu.
func (c *Client) ListDishes(ctx context.Context, cred board.Credential) ([]board.Dish, error) {
	var payload []dto.DishResponse
	if err := c.cached(ctx, cred, dishesCacheKey, "/dishes", &payload); err != nil {
		return nil, err
	}
	dishes := make([]board.Dish, 0, len(payload))
	for _, d := range payload {
		dishes = append(dishes, board.Dish{ID: d.ID, Name: d.Name, Price: d.Price})
	}
	return dishes, nil
}

// ListTables reads the floor plan.
func (c *Client) ListTables(ctx context.Context, cred board.Credential) ([]board.Table, error) {
	var payload []dto.TableResponse
	if err := c.cached(ctx, cred, tablesCacheKey, "/tables", &payload); err != nil {
		return nil, err
	}
	tables := make([]board.Table, 0, len(payload))
	for _, t := range payload {
		tables = append(tables, board.Table{ID: t.ID, Number: t.Number})
	}
	return tables, nil
}

// FetchTableStats reads per-table item statuses. Records with an unknown
// status are skipped.
func (c *Client) FetchTableStats(ctx context.Context, cred board.Credential) ([]board.TableStats, error) {
	var payload []dto.TableStatsResponse
	if err := c.do(ctx, cred, http.MethodGet, "/tables/stats", nil, &payload); err != nil {
		return nil, err
	}
	stats := make([]board.TableStats, 0, len(payload))
	for _, ts := range payload {
		entry := board.TableStats{TableNumber: ts.TableNumber, Items: make([]board.ItemStatus, 0, len(ts.Items))}
		for _, it := range ts.Items {
			status, err := board.ParseStatus(it.ItemStatus)
			if err != nil {
				c.logger.Warn("skipping item status", zap.Int("table", ts.TableNumber), zap.Int64("dish_id", it.DishID), zap.String("status", it.ItemStatus))
				continue
			}
			entry.Items = append(entry.Items, board.ItemStatus{DishID: it.DishID, Status: status})
		}
		stats = append(stats, entry)
	}
	return stats, nil
}

// MarkOrderPreparing moves a pending order to preparing.
func (c *Client) MarkOrderPreparing(ctx context.Context, cred board.Credential, orderID int64) error {
	return c.do(ctx, cred, http.MethodPost, fmt.Sprintf("/orders/%d/preparing", orderID), nil, nil)
}

// MarkOrderServed moves a preparing order to served.
func (c *Client) MarkOrderServed(ctx context.Context, cred board.Credential, orderID int64) error {
	return c.do(ctx, cred, http.MethodPost, fmt.Sprintf("/orders/%d/served", orderID), nil, nil)
}

// MarkOrderReady moves a served order to ready.
func (c *Client) MarkOrderReady(ctx context.Context, cred board.Credential, orderID int64) error {
	return c.do(ctx, cred, http.MethodPost, fmt.Sprintf("/orders/%d/ready", orderID), nil, nil)
}

// UpdateOrDeleteOrder replaces an order's items; an empty list deletes it.
func (c *Client) UpdateOrDeleteOrder(ctx context.Context, cred board.Credential, orderID int64, items []board.ItemQuantity) error {
	body := dto.UpdateOrderRequest{Items: make([]dto.ItemQuantity, 0, len(items))}
	for _, it := range items {
		body.Items = append(body.Items, dto.ItemQuantity{DishID: it.DishID, Quantity: it.Quantity})
	}
	return c.do(ctx, cred, http.MethodPut, fmt.Sprintf("/orders/%d", orderID), body, nil)
}

func (c *Client) cached(ctx context.Context, cred board.Credential, key, path string, out any) error {
	if c.cache != nil {
		raw, err := c.cache.Get(ctx, key)
		if err == nil {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			}
			c.logger.Warn("discarding unreadable cache entry", zap.String("key", key))
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("reference cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	if err := c.do(ctx, cred, http.MethodGet, path, nil, out); err != nil {
		return err
	}

	if c.cache != nil {
		raw, err := json.Marshal(out)
		if err == nil {
			err = c.cache.Set(ctx, key, raw, c.cacheTTL)
		}
		if err != nil {
			c.logger.Warn("reference cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, cred board.Credential, method, path string, body, out any) error {
	ctx, span := clientTracer.Start(ctx, "restaurant "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("http.path", path)))
	defer span.End()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errorbank.Internal("encode request", errorbank.WithCause(err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errorbank.Internal("build request", errorbank.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !cred.Empty() {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return errorbank.Unavailable("restaurant api unreachable", errorbank.WithCause(err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var env dto.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		span.RecordError(err)
		return errorbank.Unavailable("unreadable restaurant api response",
			errorbank.WithCause(err), errorbank.WithDetail("status", resp.StatusCode))
	}

	if resp.StatusCode >= http.StatusBadRequest || (resp.StatusCode != http.StatusNoContent && !env.Success) {
		message := http.StatusText(resp.StatusCode)
		if env.Error != nil && env.Error.Message != "" {
			message = env.Error.Message
		}
		span.SetStatus(codes.Error, message)
		return errorbank.FromStatus(resp.StatusCode, message,
			errorbank.WithDetail("path", path), errorbank.WithDetail("status", resp.StatusCode))
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errorbank.Unavailable("unexpected restaurant api payload", errorbank.WithCause(err))
	}
	return nil
}
