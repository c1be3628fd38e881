package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
)

func TestPlaceOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)
	ebook := env.addProduct(t, "ebook", 250, 0, false)

	order, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: lamp.ID, Quantity: 3},
			{ProductID: ebook.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 2)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(3500)), "subtotal %s", order.Subtotal)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(3500)), "total %s", order.Total)
	assert.Equal(t, 2, env.stock(t, lamp.ID))
	assert.Equal(t, 0, env.stock(t, ebook.ID))

	stored, err := env.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.True(t, stored.Total.Equal(order.Total))

	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderPlaced, events[0].Type)
	assert.Equal(t, order.ID, events[0].OrderID)
}

func TestPlaceOrder_ItemFailureRollsBackWholeOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)
	chair := env.addProduct(t, "chair", 4000, 1, true)

	_, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: lamp.ID, Quantity: 2},
			{ProductID: chair.ID, Quantity: 2},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var itemErr *domain.ItemError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, 1, itemErr.Index)
	assert.Equal(t, chair.ID, itemErr.ProductID)
	assert.Equal(t, 2, itemErr.Quantity)

	// Nothing was taken from the lamp either.
	assert.Equal(t, 5, env.stock(t, lamp.ID))
	assert.Equal(t, 1, env.stock(t, chair.ID))
	assert.Empty(t, env.publisher.Events())
}

func TestPlaceOrder_ReservesStockInProductIDOrder(t *testing.T) {
	store := &faultyStore{MemoryStore: storage.NewMemoryStore()}
	env := newTestEnvWithStore(t, store)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)
	chair := env.addProduct(t, "chair", 4000, 5, true)
	desk := env.addProduct(t, "desk", 9000, 5, true)

	req := []ItemRequest{
		{ProductID: desk.ID, Quantity: 1},
		{ProductID: lamp.ID, Quantity: 2},
		{ProductID: chair.ID, Quantity: 1},
	}
	order, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{UserID: "user-1", Items: req})
	require.NoError(t, err)

	want := []string{desk.ID, lamp.ID, chair.ID}
	sort.Strings(want)
	assert.Equal(t, want, store.decremented())

	// Line items keep the order they were requested in.
	stored, err := env.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	for _, items := range [][]domain.LineItem{order.Items, stored.Items} {
		require.Len(t, items, 3)
		for i, it := range items {
			assert.Equal(t, req[i].ProductID, it.ProductID)
		}
	}
	assert.Equal(t, 3, env.stock(t, lamp.ID))
}

func TestPlaceOrder_ReservationFailureKeepsRequestIndex(t *testing.T) {
	store := &faultyStore{MemoryStore: storage.NewMemoryStore()}
	env := newTestEnvWithStore(t, store)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 1, true)
	chair := env.addProduct(t, "chair", 4000, 5, true)

	// The lamp passes the availability check with a stale figure and fails
	// only when its stock is taken.
	store.staleStock = 10

	_, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: lamp.ID, Quantity: 3},
			{ProductID: chair.ID, Quantity: 2},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var itemErr *domain.ItemError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, 0, itemErr.Index)
	assert.Equal(t, lamp.ID, itemErr.ProductID)

	assert.Equal(t, 1, env.stock(t, lamp.ID))
	assert.Equal(t, 5, env.stock(t, chair.ID))
	assert.Empty(t, env.publisher.Events())
}

func TestPlaceOrder_ValidatesBeforeMutating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)

	_, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: lamp.ID, Quantity: 1},
			{ProductID: lamp.ID, Quantity: 0},
		},
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	var itemErr *domain.ItemError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, 1, itemErr.Index)
	assert.Equal(t, 5, env.stock(t, lamp.ID))

	_, err = env.orders.PlaceOrder(ctx, PlaceOrderRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.orders.PlaceOrder(ctx, PlaceOrderRequest{Items: []ItemRequest{{ProductID: lamp.ID, Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPlaceOrder_DuplicateRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 10, true)

	req := PlaceOrderRequest{
		RequestID: "req-1",
		UserID:    "user-1",
		Items:     []ItemRequest{{ProductID: lamp.ID, Quantity: 1}},
	}

	_, err := env.orders.PlaceOrder(ctx, req)
	require.NoError(t, err)

	_, err = env.orders.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// Stock should only be decremented once
	assert.Equal(t, 9, env.stock(t, lamp.ID))
}

func TestPlaceOrder_FailedRequestCanBeRetried(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 1, true)

	req := PlaceOrderRequest{
		RequestID: "req-1",
		UserID:    "user-1",
		Items:     []ItemRequest{{ProductID: lamp.ID, Quantity: 2}},
	}
	_, err := env.orders.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, ErrInsufficientStock)

	req.Items[0].Quantity = 1
	_, err = env.orders.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, env.stock(t, lamp.ID))
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)
	chair := env.addProduct(t, "chair", 4000, 2, true)

	order, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: lamp.ID, Quantity: 3},
			{ProductID: chair.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, env.stock(t, lamp.ID))
	require.Equal(t, 0, env.stock(t, chair.ID))

	cancelled, err := env.orders.CancelOrder(ctx, order.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, "changed mind", cancelled.CancelReason)
	assert.Equal(t, 5, env.stock(t, lamp.ID))
	assert.Equal(t, 2, env.stock(t, chair.ID))

	// A second cancellation must not restore twice.
	_, err = env.orders.CancelOrder(ctx, order.ID, "again")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 5, env.stock(t, lamp.ID))

	events := env.publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventOrderCancelled, events[1].Type)
	assert.Equal(t, "changed mind", events[1].Reason)
}

func TestCancelOrder_ProductDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)
	chair := env.addProduct(t, "chair", 4000, 2, true)

	order, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: lamp.ID, Quantity: 1},
			{ProductID: chair.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.NoError(t, env.catalog.DeleteProduct(ctx, lamp.ID))

	_, err = env.orders.CancelOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, env.stock(t, chair.ID))

	stored, err := env.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "lamp", stored.Items[0].Snapshot.Name)
}

func TestCancelOrder_ShippedIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)

	order, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: lamp.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	ok, err := env.store.Orders().TransitionStatus(ctx, order.ID, domain.CancellableStatuses, domain.OrderStatusShipped, "")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.orders.CancelOrder(ctx, order.ID, "too late")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 3, env.stock(t, lamp.ID))
}

func TestCancelOrder_ConcurrentCancelsRestoreOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lamp := env.addProduct(t, "lamp", 1000, 5, true)

	order, err := env.orders.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: lamp.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.orders.CancelOrder(ctx, order.ID, "dup"); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, 5, env.stock(t, lamp.ID))
}

func TestCancelOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.CancelOrder(context.Background(), "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
