package restaurant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/cache"
	"github.com/Additional-Code/orderboard/internal/dto"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   string
}

type fakeRestaurant struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	errBody  *dto.ErrorBody
}

func (f *fakeRestaurant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(raw)})
		status, errBody := f.status, f.errBody
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status >= 400 {
			w.WriteHeader(status)
			require.NoError(t, json.NewEncoder(w).Encode(dto.Envelope{Success: false, Error: errBody}))
			return
		}

		var data any
		switch r.URL.Path {
		case "/orders":
			data = []dto.OrderResponse{
				{ID: 1, TableNumber: 4, Status: "pending", Items: []dto.OrderItem{{DishID: 10, Quantity: 2, Instructions: "extra basil"}}},
				{ID: 2, TableNumber: 5, Status: "cancelled"},
			}
		case "/dishes":
			data = []dto.DishResponse{{ID: 10, Name: "Margherita", Price: 50}}
		case "/tables":
			data = []dto.TableResponse{{ID: 1, Number: 4}}
		case "/tables/stats":
			data = []dto.TableStatsResponse{{TableNumber: 4, Items: []dto.TableItemStatus{
				{DishID: 10, ItemStatus: "preparing"},
				{DishID: 11, ItemStatus: "burnt"},
			}}}
		}
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		require.NoError(t, json.NewEncoder(w).Encode(dto.Envelope{Success: true, Data: raw}))
	})
}

func (f *fakeRestaurant) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, store cache.Store) (*Client, *fakeRestaurant) {
	t.Helper()
	fake := &fakeRestaurant{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), store, time.Minute, nil), fake
}

var cred = board.Credential{Token: "abc"}

func TestListOrdersSkipsUnknownStatus(t *testing.T) {
	client, fake := newTestClient(t, nil)

	orders, err := client.ListOrders(context.Background(), cred)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, board.StatusPending, orders[0].Status)
	assert.Equal(t, []board.LineItem{{DishID: 10, Quantity: 2, Instructions: "extra basil"}}, orders[0].Items)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer abc", reqs[0].auth)
}

func TestFetchTableStats(t *testing.T) {
	client, _ := newTestClient(t, nil)

	stats, err := client.FetchTableStats(context.Background(), cred)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 4, stats[0].TableNumber)
	assert.Equal(t, []board.ItemStatus{{DishID: 10, Status: board.StatusPreparing}}, stats[0].Items)
}

func TestReferenceDataIsCached(t *testing.T) {
	client, fake := newTestClient(t, cache.NewMemoryStore(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dishes, err := client.ListDishes(ctx, cred)
		require.NoError(t, err)
		assert.Equal(t, []board.Dish{{ID: 10, Name: "Margherita", Price: 50}}, dishes)

		tables, err := client.ListTables(ctx, cred)
		require.NoError(t, err)
		assert.Equal(t, []board.Table{{ID: 1, Number: 4}}, tables)
	}

	assert.Len(t, fake.Requests(), 2)
}

func TestTransitionsHitStatusEndpoints(t *testing.T) {
	client, fake := newTestClient(t, nil)
	ctx := context.Background()

	require.NoError(t, client.MarkOrderPreparing(ctx, cred, 7))
	require.NoError(t, client.MarkOrderServed(ctx, cred, 7))
	require.NoError(t, client.MarkOrderReady(ctx, cred, 7))

	reqs := fake.Requests()
	require.Len(t, reqs, 3)
	for i, suffix := range []string{"preparing", "served", "ready"} {
		assert.Equal(t, http.MethodPost, reqs[i].method)
		assert.Equal(t, "/orders/7/"+suffix, reqs[i].path)
	}
}

func TestUpdateOrDeleteOrderSendsFullItemList(t *testing.T) {
	client, fake := newTestClient(t, nil)

	err := client.UpdateOrDeleteOrder(context.Background(), cred, 3, []board.ItemQuantity{{DishID: 11, Quantity: 1}})
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/orders/3", reqs[0].path)
	assert.JSONEq(t, `{"items":[{"dish_id":11,"quantity":1}]}`, reqs[0].body)

	require.NoError(t, client.UpdateOrDeleteOrder(context.Background(), cred, 3, nil))
	assert.JSONEq(t, `{"items":[]}`, fake.Requests()[1].body)
}

func TestErrorStatusMapsToKind(t *testing.T) {
	client, fake := newTestClient(t, nil)
	fake.status = http.StatusConflict
	fake.errBody = &dto.ErrorBody{Kind: "conflict", Message: "order status changed"}

	err := client.MarkOrderPreparing(context.Background(), cred, 1)
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindConflict, appErr.Kind())
	assert.Equal(t, "order status changed", appErr.Message())

	fake.status = http.StatusInternalServerError
	fake.errBody = nil
	err = client.MarkOrderPreparing(context.Background(), cred, 1)
	assert.Equal(t, errorbank.KindUnavailable, errorbank.KindOf(err))
}

func TestNoAuthorizationWithoutToken(t *testing.T) {
	client, fake := newTestClient(t, nil)

	_, err := client.ListOrders(context.Background(), board.Credential{})
	require.NoError(t, err)
	assert.Empty(t, fake.Requests()[0].auth)
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, nil, nil, 0, nil)
	err := client.MarkOrderServed(context.Background(), cred, 1)
	assert.Equal(t, errorbank.KindUnavailable, errorbank.KindOf(err))
}
