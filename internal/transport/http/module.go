package http

import (
	"go.uber.org/fx"

	boardtransport "github.com/Additional-Code/orderboard/internal/transport/http/board"
	catalogtransport "github.com/Additional-Code/orderboard/internal/transport/http/catalog"
	ordertransport "github.com/Additional-Code/orderboard/internal/transport/http/order"
)

// BoardModule registers the staff-facing board endpoints.
var BoardModule = fx.Options(
	boardtransport.Module,
)

// APIModule registers the restaurant API endpoints.
var APIModule = fx.Options(
	ordertransport.Module,
	catalogtransport.Module,
)
