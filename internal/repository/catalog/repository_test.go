package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/database"
	"github.com/Additional-Code/orderboard/internal/migration"
	"github.com/Additional-Code/orderboard/internal/seeder"
)

func TestCatalogReads(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{Database: config.Database{
		Driver:       "sqlite",
		WriterDSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		MaxOpenConns: 1,
	}}
	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Writer.Close() })

	m, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))
	require.NoError(t, seeder.New(conns, zap.NewNop()).Catalog(ctx))

	repo := NewRepository(conns)

	dishes, err := repo.Dishes(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, dishes)
	for i := 1; i < len(dishes); i++ {
		assert.Less(t, dishes[i-1].ID, dishes[i].ID)
	}

	tables, err := repo.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 8)
	assert.Equal(t, 1, tables[0].Number)

	ok, err := repo.TableExists(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.TableExists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DishExists(ctx, dishes[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
