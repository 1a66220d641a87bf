package board

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/dto"
)

type stubAPI struct {
	mu       sync.Mutex
	calls    []string
	replaced []board.ItemQuantity
	tokens   []string
}

func (s *stubAPI) record(name string, cred board.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	s.tokens = append(s.tokens, cred.Token)
}

func (s *stubAPI) MarkOrderPreparing(_ context.Context, cred board.Credential, _ int64) error {
	s.record("preparing", cred)
	return nil
}

func (s *stubAPI) MarkOrderServed(_ context.Context, cred board.Credential, _ int64) error {
	s.record("served", cred)
	return nil
}

func (s *stubAPI) MarkOrderReady(_ context.Context, cred board.Credential, _ int64) error {
	s.record("ready", cred)
	return nil
}

func (s *stubAPI) UpdateOrDeleteOrder(_ context.Context, cred board.Credential, _ int64, items []board.ItemQuantity) error {
	s.record("update", cred)
	s.mu.Lock()
	s.replaced = items
	s.mu.Unlock()
	return nil
}

type stubFeed struct {
	snap       board.Snapshot
	refreshErr error
	refreshes  int
}

func (f *stubFeed) Snapshot() board.Snapshot { return f.snap }

func (f *stubFeed) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func newServer(t *testing.T) (*echo.Echo, *stubAPI, *stubFeed) {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	feed := &stubFeed{snap: board.Snapshot{
		Orders: []board.Order{
			{ID: 1, TableNumber: 4, Status: board.StatusPending, CreatedAt: now, Items: []board.LineItem{
				{DishID: 10, Quantity: 2},
				{DishID: 11, Quantity: 1},
			}},
			{ID: 2, TableNumber: 4, Status: board.StatusPreparing, CreatedAt: now.Add(time.Minute)},
		},
		Dishes: []board.Dish{{ID: 10, Name: "Margherita", Price: 50}, {ID: 11, Name: "Tiramisu", Price: 12.5}},
		Tables: []board.Table{{ID: 1, Number: 4}},
	}}
	api := &stubAPI{}
	b := board.New(api, feed, nil, board.Options{PollInterval: 5 * time.Millisecond, ReconcileTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	e := echo.New()
	Register(e, NewHandler(b, feed))
	return e, api, feed
}

func serve(e *echo.Echo, method, target, token string) (*httptest.ResponseRecorder, dto.Envelope) {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env dto.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestTabsDefaultsToPreparing(t *testing.T) {
	e, _, _ := newServer(t)

	rec, env := serve(e, http.MethodGet, "/board", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body TabsResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, board.StatusPreparing, body.Tab)
	assert.Equal(t, 1, body.Counts[board.StatusPending])
	assert.Equal(t, 1, body.Counts[board.StatusPreparing])
	require.Len(t, body.Orders, 1)
	assert.Equal(t, int64(2), body.Orders[0].ID)
}

func TestTabsRejectsUnknownTab(t *testing.T) {
	e, _, _ := newServer(t)

	rec, env := serve(e, http.MethodGet, "/board?tab=cancelled", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "bad_request", env.Error.Kind)
}

func TestGetOrder(t *testing.T) {
	e, _, _ := newServer(t)

	rec, env := serve(e, http.MethodGet, "/board/orders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view board.ViewOrder
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "4", view.Table)
	assert.InDelta(t, 112.5, view.Total, 1e-9)
	assert.Equal(t, "Start Preparing", view.Action)

	rec, _ = serve(e, http.MethodGet, "/board/orders/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = serve(e, http.MethodGet, "/board/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvanceForwardsCredential(t *testing.T) {
	e, api, _ := newServer(t)

	rec, env := serve(e, http.MethodPost, "/board/orders/1/advance", "staff-token")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var view board.ViewOrder
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, board.StatusPreparing, view.Status)
	assert.True(t, view.Loading)

	assert.Equal(t, []string{"preparing"}, api.calls)
	assert.Equal(t, []string{"staff-token"}, api.tokens)
}

func TestAdvanceWithoutCredential(t *testing.T) {
	e, api, _ := newServer(t)

	rec, _ := serve(e, http.MethodPost, "/board/orders/1/advance", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, api.calls)
}

func TestRemoveItemRequiresConfirmation(t *testing.T) {
	e, api, _ := newServer(t)

	rec, env := serve(e, http.MethodDelete, "/board/orders/1/items/10", "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, env.Error)
	assert.Empty(t, api.calls)

	rec, env = serve(e, http.MethodDelete, "/board/orders/1/items/10?confirm=yes", "tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "bad_request", env.Error.Kind)
	assert.Empty(t, api.calls)

	rec, _ = serve(e, http.MethodDelete, "/board/orders/1/items/10?confirm=false", "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, api.calls)

	rec, _ = serve(e, http.MethodDelete, "/board/orders/1/items/10?confirm=true", "tok")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"update"}, api.calls)
	assert.Equal(t, []board.ItemQuantity{{DishID: 11, Quantity: 1}}, api.replaced)
}

func TestRefresh(t *testing.T) {
	e, _, feed := newServer(t)

	rec, _ := serve(e, http.MethodPost, "/board/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, feed.refreshes)

	feed.refreshErr = errors.New("boom")
	rec, env := serve(e, http.MethodPost, "/board/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unavailable", env.Error.Kind)
}
