package board

import "time"

// LineItem is one dish line of an order as reported by the order feed.
type LineItem struct {
	DishID       int64
	Quantity     int
	Instructions string
}

// Order is an in-flight dine-in order as reported by the order feed.
type Order struct {
	ID          int64
	TableNumber int
	Status      Status
	Items       []LineItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Dish is menu reference data.
type Dish struct {
	ID    int64
	Name  string
	Price float64
}

// Table is floor reference data.
type Table struct {
	ID     int64
	Number int
}

// ItemStatus is the kitchen state of one dish at a table.
type ItemStatus struct {
	DishID int64
	Status Status
}

// TableStats groups item statuses by table number.
type TableStats struct {
	TableNumber int
	Items       []ItemStatus
}

// Snapshot is one consistent read of the four upstream feeds.
type Snapshot struct {
	Orders []Order
	Dishes []Dish
	Tables []Table
	Stats  []TableStats
}

// Order looks up an order by id.
func (s Snapshot) Order(id int64) (Order, bool) {
	for _, o := range s.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// ItemQuantity is one entry of a full item-list replacement.
type ItemQuantity struct {
	DishID   int64
	Quantity int
}

// ViewItem is a line item enriched for display.
type ViewItem struct {
	DishID       int64   `json:"dish_id"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	Total        float64 `json:"total"`
	Instructions string  `json:"instructions,omitempty"`
	Status       Status  `json:"status"`
}

// ViewOrder is the denormalized board row for one order.
type ViewOrder struct {
	ID        int64      `json:"id"`
	Table     string     `json:"table"`
	Items     []ViewItem `json:"items"`
	Total     float64    `json:"total"`
	Status    Status     `json:"status"`
	Action    string     `json:"action,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	// Loading is set while a transition for this order is in flight.
	Loading bool `json:"loading"`
	// Unconfirmed is set when the feed never confirmed an optimistic status.
	Unconfirmed bool `json:"unconfirmed"`
}

// Item returns the first line for dishID.
func (v ViewOrder) Item(dishID int64) (ViewItem, bool) {
	for _, it := range v.Items {
		if it.DishID == dishID {
			return it, true
		}
	}
	return ViewItem{}, false
}

// CanRemove reports whether staff may remove item from the order: both the
// order and the item must still be pending.
func (v ViewOrder) CanRemove(item ViewItem) bool {
	return v.Status == StatusPending && item.Status == StatusPending
}
