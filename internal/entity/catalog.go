package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Dish is a menu entry.
type Dish struct {
	bun.BaseModel `bun:"table:dishes"`

	ID    int64   `bun:",pk,autoincrement" json:"id"`
	Name  string  `bun:"name,notnull" json:"name"`
	Price float64 `bun:"price,notnull" json:"price"`
}

// Table is a dining table identified on the floor by its number.
type Table struct {
	bun.BaseModel `bun:"table:dining_tables"`

	ID     int64 `bun:",pk,autoincrement" json:"id"`
	Number int   `bun:"number,notnull,unique" json:"number"`
}

// TableItemStatus is the kitchen state of one dish at one table.
type TableItemStatus struct {
	bun.BaseModel `bun:"table:table_item_statuses"`

	TableNumber int       `bun:"table_number,pk" json:"table_number"`
	DishID      int64     `bun:"dish_id,pk" json:"dish_id"`
	Status      string    `bun:"status,notnull" json:"status"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}
