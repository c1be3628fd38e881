package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func TestCatalog_UpdateOptimisticLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)

	first, err := env.catalog.GetProduct(ctx, lamp.ID)
	require.NoError(t, err)
	second, err := env.catalog.GetProduct(ctx, lamp.ID)
	require.NoError(t, err)

	first.Price = decimal.NewFromInt(1100)
	require.NoError(t, env.catalog.UpdateProduct(ctx, first))
	assert.Equal(t, 1, first.Version)

	second.Price = decimal.NewFromInt(900)
	assert.ErrorIs(t, env.catalog.UpdateProduct(ctx, second), domain.ErrConflict)
}

func TestCatalog_StaleEditCannotUndoSale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)

	stale, err := env.catalog.GetProduct(ctx, lamp.ID)
	require.NoError(t, err)

	_, err = env.factory.CreateLineItem(ctx, "order-1", lamp.ID, 3)
	require.NoError(t, err)
	require.Equal(t, 2, env.stock(t, lamp.ID))

	stale.Name = "lamp v2"
	assert.ErrorIs(t, env.catalog.UpdateProduct(ctx, stale), domain.ErrConflict)
	assert.Equal(t, 2, env.stock(t, lamp.ID))

	fresh, err := env.catalog.GetProduct(ctx, lamp.ID)
	require.NoError(t, err)
	fresh.Name = "lamp v2"
	require.NoError(t, env.catalog.UpdateProduct(ctx, fresh))
	assert.Equal(t, 2, env.stock(t, lamp.ID))
}

func TestCatalog_CreateRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	err := env.catalog.CreateProduct(context.Background(), &domain.Product{Name: "", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCatalog_SetImagesKeepsSinglePrimary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)

	images, err := env.catalog.SetImages(ctx, lamp.ID, []domain.ProductImage{
		{URL: "a", IsPrimary: true},
		{URL: "b", IsPrimary: true},
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.False(t, images[0].IsPrimary)
	assert.True(t, images[1].IsPrimary)

	_, err = env.catalog.SetImages(ctx, "missing", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_DeleteMissing(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.catalog.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, env.catalog.DeleteProduct(context.Background(), "missing"), domain.ErrNotFound)
}
