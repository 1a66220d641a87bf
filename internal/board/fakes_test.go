package board

import (
	"context"
	"sync"
	"time"
)

type apiCall struct {
	method  string
	orderID int64
	token   string
	items   []ItemQuantity
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	err   error
	// onCall runs after a successful call, e.g. to move the feed forward.
	onCall func(method string, orderID int64)
}

func (f *fakeAPI) record(method string, cred Credential, orderID int64, items []ItemQuantity) error {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, orderID: orderID, token: cred.Token, items: items})
	err, hook := f.err, f.onCall
	f.mu.Unlock()
	if err == nil && hook != nil {
		hook(method, orderID)
	}
	return err
}

func (f *fakeAPI) MarkOrderPreparing(_ context.Context, cred Credential, orderID int64) error {
	return f.record("preparing", cred, orderID, nil)
}

func (f *fakeAPI) MarkOrderServed(_ context.Context, cred Credential, orderID int64) error {
	return f.record("served", cred, orderID, nil)
}

func (f *fakeAPI) MarkOrderReady(_ context.Context, cred Credential, orderID int64) error {
	return f.record("ready", cred, orderID, nil)
}

func (f *fakeAPI) UpdateOrDeleteOrder(_ context.Context, cred Credential, orderID int64, items []ItemQuantity) error {
	return f.record("update", cred, orderID, items)
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type fakeFeed struct {
	mu       sync.Mutex
	snap     Snapshot
	requests int
}

func (f *fakeFeed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeFeed) RequestRefresh() {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
}

func (f *fakeFeed) setStatus(orderID int64, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := make([]Order, len(f.snap.Orders))
	copy(orders, f.snap.Orders)
	for i := range orders {
		if orders[i].ID == orderID {
			orders[i].Status = status
		}
	}
	f.snap.Orders = orders
}

func (f *fakeFeed) touch(orderID int64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := make([]Order, len(f.snap.Orders))
	copy(orders, f.snap.Orders)
	for i := range orders {
		if orders[i].ID == orderID {
			orders[i].UpdatedAt = at
		}
	}
	f.snap.Orders = orders
}

func (f *fakeFeed) drop(orderID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := make([]Order, 0, len(f.snap.Orders))
	for _, o := range f.snap.Orders {
		if o.ID != orderID {
			orders = append(orders, o)
		}
	}
	f.snap.Orders = orders
}

var baseTime = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Orders: []Order{
			{
				ID: 1, TableNumber: 4, Status: StatusPending, CreatedAt: baseTime, UpdatedAt: baseTime,
				Items: []LineItem{
					{DishID: 10, Quantity: 2},
					{DishID: 11, Quantity: 1, Instructions: "no onions"},
				},
			},
			{
				ID: 2, TableNumber: 7, Status: StatusPreparing, CreatedAt: baseTime.Add(time.Minute), UpdatedAt: baseTime.Add(time.Minute),
				Items: []LineItem{{DishID: 11, Quantity: 3}},
			},
			{
				ID: 3, TableNumber: 4, Status: StatusReady, CreatedAt: baseTime.Add(-time.Minute), UpdatedAt: baseTime,
				Items: []LineItem{{DishID: 10, Quantity: 1}},
			},
		},
		Dishes: []Dish{
			{ID: 10, Name: "Margherita", Price: 50},
			{ID: 11, Name: "Tiramisu", Price: 12.5},
		},
		Tables: []Table{{ID: 100, Number: 4}, {ID: 101, Number: 7}},
		Stats: []TableStats{
			{TableNumber: 4, Items: []ItemStatus{{DishID: 11, Status: StatusPreparing}}},
		},
	}
}

func newTestBoard(api API, feed Feed, poll, timeout time.Duration) *Board {
	return New(api, feed, nil, Options{PollInterval: poll, ReconcileTimeout: timeout})
}
