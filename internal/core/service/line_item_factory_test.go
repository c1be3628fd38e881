package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
)

func TestCreateLineItem_DecrementsStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.addProduct(t, "lamp", 1000, 5, true)

	item, err := env.factory.CreateLineItem(ctx, "order-1", product.ID, 3)
	require.NoError(t, err)

	assert.True(t, item.Subtotal.Equal(decimal.NewFromInt(3000)), "subtotal %s", item.Subtotal)
	assert.True(t, item.Total.Equal(decimal.NewFromInt(3000)), "total %s", item.Total)
	assert.True(t, item.Discount.IsZero())
	assert.True(t, item.Tax.IsZero())
	assert.Equal(t, 2, env.stock(t, product.ID))

	// Second request needs 3, only 2 left.
	_, err = env.factory.CreateLineItem(ctx, "order-1", product.ID, 3)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "lamp", stockErr.ProductName)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 2, env.stock(t, product.ID))

	items, err := env.store.LineItems().ListByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCreateLineItem_UntrackedInventory(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct(t, "ebook", 500, 0, false)

	item, err := env.factory.CreateLineItem(context.Background(), "order-1", product.ID, 10)
	require.NoError(t, err)

	assert.Equal(t, 10, item.Quantity)
	assert.Equal(t, 0, env.stock(t, product.ID))
}

func TestCreateLineItem_ProductNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.factory.CreateLineItem(context.Background(), "order-1", "missing", 1)
	require.ErrorIs(t, err, domain.ErrNotFound)

	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "product", nf.Entity)
}

func TestCreateLineItem_Validation(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct(t, "lamp", 1000, 5, true)

	_, err := env.factory.CreateLineItem(context.Background(), "order-1", product.ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.factory.CreateLineItem(context.Background(), "", product.ID, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, 5, env.stock(t, product.ID))
}

func TestCreateLineItem_SnapshotSurvivesProductEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.addProduct(t, "lamp", 1000, 5, true)

	_, err := env.catalog.SetImages(ctx, product.ID, []domain.ProductImage{
		{URL: "https://cdn/side.jpg"},
		{URL: "https://cdn/front.jpg", IsPrimary: true},
	})
	require.NoError(t, err)

	item, err := env.factory.CreateLineItem(ctx, "order-1", product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/front.jpg", item.Snapshot.ImageURL)

	current, err := env.catalog.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	current.Name = "desk lamp"
	current.Price = decimal.NewFromInt(2000)
	require.NoError(t, env.catalog.UpdateProduct(ctx, current))

	items, err := env.store.LineItems().ListByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "lamp", items[0].Snapshot.Name)
	assert.Equal(t, "SKU-lamp", items[0].Snapshot.SKU)
	assert.True(t, items[0].Price.Equal(decimal.NewFromInt(1000)))
}

func TestCreateLineItem_DescriptionFallsBackToShort(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	product := &domain.Product{
		Name:             "mug",
		ShortDescription: "a mug",
		Price:            decimal.NewFromInt(12),
		TrackInventory:   true,
		Stock:            1,
	}
	require.NoError(t, env.catalog.CreateProduct(ctx, product))

	item, err := env.factory.CreateLineItem(ctx, "order-1", product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "a mug", item.Snapshot.Description)
	assert.Equal(t, "", item.Snapshot.ImageURL)
}

func TestCreateLineItem_UsesImageCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.addProduct(t, "lamp", 1000, 5, true)

	_, err := env.catalog.SetImages(ctx, product.ID, []domain.ProductImage{{URL: "https://cdn/a.jpg", IsPrimary: true}})
	require.NoError(t, err)

	_, err = env.factory.CreateLineItem(ctx, "order-1", product.ID, 1)
	require.NoError(t, err)
	_, err = env.factory.CreateLineItem(ctx, "order-1", product.ID, 1)
	require.NoError(t, err)

	// SetImages primed the cache, so neither lookup reached the repository.
	assert.Equal(t, 2, env.cache.imageHits)

	// Replacing images overwrites the cached URL.
	_, err = env.catalog.SetImages(ctx, product.ID, []domain.ProductImage{{URL: "https://cdn/b.jpg", IsPrimary: true}})
	require.NoError(t, err)

	item, err := env.factory.CreateLineItem(ctx, "order-1", product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/b.jpg", item.Snapshot.ImageURL)
}

func TestCreateLineItem_CacheFillDoesNotOverwriteNewerImage(t *testing.T) {
	store := &faultyStore{MemoryStore: storage.NewMemoryStore()}
	env := newTestEnvWithStore(t, store)
	ctx := context.Background()
	product := env.addProduct(t, "lamp", 1000, 5, true)

	_, err := env.catalog.SetImages(ctx, product.ID, []domain.ProductImage{{URL: "https://cdn/old.jpg", IsPrimary: true}})
	require.NoError(t, err)
	require.NoError(t, env.cache.InvalidateImageURL(ctx, product.ID))

	// An image replacement commits and refreshes the cache while the line
	// item is still holding the old URL.
	store.onImageRead = func(productID string) {
		require.NoError(t, env.cache.SetImageURL(ctx, productID, "https://cdn/new.jpg"))
	}

	item, err := env.factory.CreateLineItem(ctx, "order-1", product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/old.jpg", item.Snapshot.ImageURL)

	cached, ok := env.cache.cachedImage(product.ID)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/new.jpg", cached)
}

func TestCreateLineItem_DecrementFailureRollsBackItem(t *testing.T) {
	store := &faultyStore{MemoryStore: storage.NewMemoryStore(), decrementErr: errors.New("connection reset")}
	env := newTestEnvWithStore(t, store)
	ctx := context.Background()
	product := env.addProduct(t, "lamp", 1000, 5, true)

	_, err := env.factory.CreateLineItem(ctx, "order-1", product.ID, 2)
	require.Error(t, err)

	items, err := env.store.LineItems().ListByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 5, env.stock(t, product.ID))
}

func TestCreateLineItem_LostRaceReportsInsufficientStock(t *testing.T) {
	store := &faultyStore{MemoryStore: storage.NewMemoryStore()}
	env := newTestEnvWithStore(t, store)
	ctx := context.Background()
	product := env.addProduct(t, "lamp", 1000, 1, true)

	// The availability check sees 10 units, the conditional write sees 1.
	store.staleStock = 10

	_, err := env.factory.CreateLineItem(ctx, "order-1", product.ID, 3)
	require.ErrorIs(t, err, ErrInsufficientStock)

	items, err := env.store.LineItems().ListByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, env.stock(t, product.ID))
}

func TestCreateLineItem_Concurrent(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	env := newTestEnv(t)
	product := env.addProduct(t, "flash", 100, initialStock, true)

	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.factory.CreateLineItem(context.Background(), "order-c", product.ID, 1)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, ErrInsufficientStock) {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, int32(totalRequests-initialStock), failCount.Load())
	assert.Equal(t, 0, env.stock(t, product.ID))
}
