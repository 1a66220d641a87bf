package dto

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON body every endpoint responds with.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
	Meta    map[string]any  `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	DishID       int64  `json:"dish_id"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID          int64       `json:"id"`
	TableNumber int         `json:"table_number"`
	Status      string      `json:"status"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// DishResponse is a menu entry.
type DishResponse struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// TableResponse is a dining table.
type TableResponse struct {
	ID     int64 `json:"id"`
	Number int   `json:"number"`
}

// TableItemStatus is the kitchen state of one dish at a table.
type TableItemStatus struct {
	DishID     int64  `json:"dish_id"`
	ItemStatus string `json:"item_status"`
}

// TableStatsResponse groups item statuses by table.
type TableStatsResponse struct {
	TableNumber int               `json:"table_number"`
	Items       []TableItemStatus `json:"items"`
}

// CreateOrderRequest opens an order for a table.
type CreateOrderRequest struct {
	TableNumber int         `json:"table_number"`
	Items       []OrderItem `json:"items"`
}

// ItemQuantity is one entry of an item-list replacement.
type ItemQuantity struct {
	DishID   int64 `json:"dish_id"`
	Quantity int   `json:"quantity"`
}

// UpdateOrderRequest replaces an order's items; an empty list deletes the order.
type UpdateOrderRequest struct {
	Items []ItemQuantity `json:"items"`
}

// ItemStatusRequest sets the kitchen state of a dish at a table.
type ItemStatusRequest struct {
	Status string `json:"status"`
}
