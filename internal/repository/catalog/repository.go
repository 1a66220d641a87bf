package catalog

import (
	"context"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderboard/internal/database"
	"github.com/Additional-Code/orderboard/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderboard/repository/catalog")

// Module provides the catalog repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads menu and floor reference data.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a repository backed by the read connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// Dishes lists the menu ordered by id.
func (r *Repository) Dishes(ctx context.Context) ([]entity.Dish, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.Dishes")
	defer span.End()

	var dishes []entity.Dish
	if err := r.reader.NewSelect().Model(&dishes).Order("id ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return dishes, nil
}

// Tables lists dining tables ordered by number.
func (r *Repository) Tables(ctx context.Context) ([]entity.Table, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.Tables")
	defer span.End()

	var tables []entity.Table
	if err := r.reader.NewSelect().Model(&tables).Order("number ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return tables, nil
}

// TableExists reports whether a table with number is on the floor.
func (r *Repository) TableExists(ctx context.Context, number int) (bool, error) {
	return r.reader.NewSelect().Model((*entity.Table)(nil)).Where("number = ?", number).Exists(ctx)
}

// DishExists reports whether a dish is on the menu.
func (r *Repository) DishExists(ctx context.Context, id int64) (bool, error) {
	return r.reader.NewSelect().Model((*entity.Dish)(nil)).Where("id = ?", id).Exists(ctx)
}
