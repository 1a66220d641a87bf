package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order is a dine-in order stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          int64        `bun:",pk,autoincrement" json:"id"`
	TableNumber int          `bun:"table_number,notnull" json:"table_number"`
	Status      string       `bun:"status,notnull" json:"status"`
	Items       []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items"`
	CreatedAt   time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `bun:"updated_at,nullzero" json:"updated_at"`
}

// OrderItem is one dish line of an order.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID           int64  `bun:",pk,autoincrement" json:"id"`
	OrderID      int64  `bun:"order_id,notnull" json:"order_id"`
	DishID       int64  `bun:"dish_id,notnull" json:"dish_id"`
	Quantity     int    `bun:"quantity,notnull" json:"quantity"`
	Instructions string `bun:"instructions" json:"instructions,omitempty"`
}
