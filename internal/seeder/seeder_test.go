package seeder

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/database"
	"github.com/Additional-Code/orderboard/internal/entity"
	"github.com/Additional-Code/orderboard/internal/migration"
)

func TestSeedIsIdempotent(t *testing.T) {
	cfg := config.Config{Database: config.Database{
		Driver:       "sqlite",
		WriterDSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		MaxOpenConns: 1,
	}}
	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Writer.Close() })

	ctx := context.Background()
	m, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))

	s := New(conns, nil)
	require.NoError(t, s.All(ctx))
	require.NoError(t, s.All(ctx))

	dishes, err := conns.Writer.NewSelect().Model((*entity.Dish)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, dishes)

	var orders []entity.Order
	require.NoError(t, conns.Writer.NewSelect().Model(&orders).Relation("Items").Order("id ASC").Scan(ctx))
	require.Len(t, orders, 4)
	assert.Equal(t, []string{"pending", "preparing", "served", "ready"},
		[]string{orders[0].Status, orders[1].Status, orders[2].Status, orders[3].Status})
	for _, o := range orders {
		assert.Len(t, o.Items, 1)
	}
}
