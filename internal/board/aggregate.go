package board

import (
	"sort"
	"strconv"
)

const (
	unknownTable = "Unknown"
	unknownDish  = "Unknown Dish"
)

type statusKey struct {
	table int
	dish  int64
}

// Aggregate joins orders with dishes, tables, and per-table item statuses
// into board rows, newest order first. It has no side effects.
func Aggregate(orders []Order, dishes []Dish, tables []Table, stats []TableStats) []ViewOrder {
	dishByID := make(map[int64]Dish, len(dishes))
	for _, d := range dishes {
		if _, seen := dishByID[d.ID]; !seen {
			dishByID[d.ID] = d
		}
	}

	tableByNumber := make(map[int]Table, len(tables))
	for _, t := range tables {
		if _, seen := tableByNumber[t.Number]; !seen {
			tableByNumber[t.Number] = t
		}
	}

	itemStatus := make(map[statusKey]Status)
	for _, ts := range stats {
		for _, it := range ts.Items {
			key := statusKey{table: ts.TableNumber, dish: it.DishID}
			if _, seen := itemStatus[key]; !seen {
				itemStatus[key] = it.Status
			}
		}
	}

	views := make([]ViewOrder, 0, len(orders))
	for _, o := range orders {
		label := unknownTable
		if t, ok := tableByNumber[o.TableNumber]; ok {
			label = strconv.Itoa(t.Number)
		}

		view := ViewOrder{
			ID:        o.ID,
			Table:     label,
			Items:     make([]ViewItem, 0, len(o.Items)),
			Status:    o.Status,
			Action:    o.Status.ActionLabel(),
			CreatedAt: o.CreatedAt,
			UpdatedAt: o.UpdatedAt,
		}

		for _, li := range o.Items {
			name, price := unknownDish, 0.0
			if d, ok := dishByID[li.DishID]; ok {
				name, price = d.Name, d.Price
			}
			status, ok := itemStatus[statusKey{table: o.TableNumber, dish: li.DishID}]
			if !ok {
				status = StatusPending
			}
			total := price * float64(li.Quantity)
			view.Items = append(view.Items, ViewItem{
				DishID:       li.DishID,
				Name:         name,
				Quantity:     li.Quantity,
				Total:        total,
				Instructions: li.Instructions,
				Status:       status,
			})
			view.Total += total
		}

		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}
