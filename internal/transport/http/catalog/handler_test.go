package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderboard/internal/auth"
	"github.com/Additional-Code/orderboard/internal/dto"
	"github.com/Additional-Code/orderboard/internal/entity"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

type stubCatalog struct {
	err error
}

func (s stubCatalog) Dishes(context.Context) ([]entity.Dish, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []entity.Dish{{ID: 10, Name: "Margherita", Price: 50}}, nil
}

func (s stubCatalog) Tables(context.Context) ([]entity.Table, error) {
	return []entity.Table{{ID: 1, Number: 4}}, nil
}

func get(e *echo.Echo, target string) (*httptest.ResponseRecorder, dto.Envelope) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env dto.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestCatalogRoutes(t *testing.T) {
	e := echo.New()
	Register(e, NewHandler(stubCatalog{}), auth.NewVerifier(""))

	rec, env := get(e, "/dishes")
	require.Equal(t, http.StatusOK, rec.Code)
	var dishes []dto.DishResponse
	require.NoError(t, json.Unmarshal(env.Data, &dishes))
	assert.Equal(t, []dto.DishResponse{{ID: 10, Name: "Margherita", Price: 50}}, dishes)

	rec, env = get(e, "/tables")
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []dto.TableResponse
	require.NoError(t, json.Unmarshal(env.Data, &tables))
	assert.Equal(t, 4, tables[0].Number)
}

func TestCatalogServiceError(t *testing.T) {
	e := echo.New()
	Register(e, NewHandler(stubCatalog{err: errorbank.Internal("failed to list dishes", errorbank.WithCause(errors.New("db down")))}), auth.NewVerifier(""))

	rec, env := get(e, "/dishes")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
}
