package catalog

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderboard/internal/entity"
	repo "github.com/Additional-Code/orderboard/internal/repository/catalog"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderboard/service/catalog")

// Module provides the catalog service to Fx.
var Module = fx.Provide(func(r *repo.Repository) *Service { return NewService(r) })

// Reader lists reference data.
type Reader interface {
	Dishes(ctx context.Context) ([]entity.Dish, error)
	Tables(ctx context.Context) ([]entity.Table, error)
}

// Service serves the menu and the floor plan.
type Service struct {
	repo Reader
}

// NewService constructs a Service.
func NewService(r Reader) *Service {
	return &Service{repo: r}
}

// Dishes lists the menu.
func (s *Service) Dishes(ctx context.Context) ([]entity.Dish, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.Dishes")
	defer span.End()

	dishes, err := s.repo.Dishes(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to list dishes", errorbank.WithCause(err))
	}
	return dishes, nil
}

// Tables lists dining tables.
func (s *Service) Tables(ctx context.Context) ([]entity.Table, error) {
	ctx, span := serviceTracer.Start(ctx, "CatalogService.Tables")
	defer span.End()

	tables, err := s.repo.Tables(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to list tables", errorbank.WithCause(err))
	}
	return tables, nil
}
