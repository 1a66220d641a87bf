package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/database"
	"github.com/Additional-Code/orderboard/internal/entity"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: conns.Writer, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// All seeds the catalog and then sample orders.
func (s *Seeder) All(ctx context.Context) error {
	if err := s.Catalog(ctx); err != nil {
		return err
	}
	return s.Orders(ctx)
}

// Catalog seeds dishes and tables when the menu is empty.
func (s *Seeder) Catalog(ctx context.Context) error {
	n, err := s.db.NewSelect().Model((*entity.Dish)(nil)).Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("catalog already seeded", zap.Int("dishes", n))
		return nil
	}

	dishes := []entity.Dish{
		{Name: "Margherita", Price: 50},
		{Name: "Carbonara", Price: 62},
		{Name: "Caesar Salad", Price: 38.5},
		{Name: "Tiramisu", Price: 24},
		{Name: "Lemonade", Price: 12},
	}
	tables := make([]entity.Table, 0, 8)
	for i := 1; i <= 8; i++ {
		tables = append(tables, entity.Table{Number: i})
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&dishes).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&tables).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("seeded catalog", zap.Int("dishes", len(dishes)), zap.Int("tables", len(tables)))
	return nil
}

// Orders seeds one order per status when no orders exist.
func (s *Seeder) Orders(ctx context.Context) error {
	n, err := s.db.NewSelect().Model((*entity.Order)(nil)).Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("orders already seeded", zap.Int("orders", n))
		return nil
	}

	var dishes []entity.Dish
	if err := s.db.NewSelect().Model(&dishes).Order("id ASC").Limit(3).Scan(ctx); err != nil {
		return err
	}
	if len(dishes) == 0 {
		s.logger.Warn("no dishes to build sample orders from")
		return nil
	}

	now := s.now()
	samples := []struct {
		table  int
		status string
		age    time.Duration
	}{
		{table: 1, status: "pending", age: 2 * time.Minute},
		{table: 2, status: "preparing", age: 10 * time.Minute},
		{table: 3, status: "served", age: 25 * time.Minute},
		{table: 4, status: "ready", age: 40 * time.Minute},
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, sample := range samples {
			order := &entity.Order{
				TableNumber: sample.table,
				Status:      sample.status,
				CreatedAt:   now.Add(-sample.age),
				UpdatedAt:   now,
			}
			if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
				return err
			}
			items := []*entity.OrderItem{{OrderID: order.ID, DishID: dishes[i%len(dishes)].ID, Quantity: i + 1}}
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return err
			}
			status := &entity.TableItemStatus{TableNumber: sample.table, DishID: items[0].DishID, Status: sample.status, UpdatedAt: now}
			if _, err := tx.NewInsert().Model(status).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	return nil
}
