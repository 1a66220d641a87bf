package dto

import "time"

// Order event types published on the messaging topic.
const (
	EventOrderCreated           = "order.created"
	EventOrderStatusChanged     = "order.status_changed"
	EventOrderItemsReplaced     = "order.items_replaced"
	EventOrderDeleted           = "order.deleted"
	EventTableItemStatusChanged = "table_item.status_changed"
)

// OrderEvent is emitted whenever the restaurant API mutates an order or an
// item status.
type OrderEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OrderID     int64     `json:"order_id,omitempty"`
	TableNumber int       `json:"table_number"`
	DishID      int64     `json:"dish_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
