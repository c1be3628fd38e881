package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	images         map[string]string
	imageHits      int
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		idempotencySet: make(map[string]bool),
		images:         make(map[string]string),
	}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) GetImageURL(ctx context.Context, productID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url, ok := m.images[productID]
	if ok {
		m.imageHits++
	}
	return url, ok, nil
}

func (m *mockCacheRepo) SetImageURL(ctx context.Context, productID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[productID] = url
	return nil
}

func (m *mockCacheRepo) FillImageURL(ctx context.Context, productID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[productID]; !ok {
		m.images[productID] = url
	}
	return nil
}

func (m *mockCacheRepo) cachedImage(productID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url, ok := m.images[productID]
	return url, ok
}

func (m *mockCacheRepo) InvalidateImageURL(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, productID)
	return nil
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) Events() []domain.OrderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderEvent(nil), m.events...)
}

type testEnv struct {
	store     port.UnitOfWork
	cache     *mockCacheRepo
	publisher *mockPublisher
	factory   *LineItemFactory
	reversal  *StockReversal
	orders    *OrderService
	catalog   *CatalogService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, storage.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store port.UnitOfWork) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	tracer := noop.NewTracerProvider().Tracer("test")
	cache := newMockCacheRepo()
	publisher := &mockPublisher{}

	factory := NewLineItemFactory(store, cache, logger, tracer)
	reversal := NewStockReversal(store, logger, tracer)

	return &testEnv{
		store:     store,
		cache:     cache,
		publisher: publisher,
		factory:   factory,
		reversal:  reversal,
		orders:    NewOrderService(store, factory, reversal, cache, publisher, logger, tracer),
		catalog:   NewCatalogService(store, cache, logger),
	}
}

func (e *testEnv) addProduct(t *testing.T, name string, price int64, stock int, tracked bool) *domain.Product {
	t.Helper()

	p := &domain.Product{
		Name:           name,
		Description:    name + " description",
		SKU:            "SKU-" + name,
		Price:          decimal.NewFromInt(price),
		TrackInventory: tracked,
		Stock:          stock,
	}
	require.NoError(t, e.catalog.CreateProduct(context.Background(), p))
	return p
}

func (e *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()

	p, err := e.store.Products().FindByID(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}

// faultyStore injects failures into the product repository seen inside
// transactions.
type faultyStore struct {
	*storage.MemoryStore
	decrementErr error
	staleStock   int

	// onImageRead runs after the primary image was read, before it is returned.
	onImageRead func(productID string)

	mu         sync.Mutex
	decrements []string
}

func (s *faultyStore) decremented() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.decrements...)
}

func (s *faultyStore) Atomic(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	return s.MemoryStore.Atomic(ctx, func(ctx context.Context, repos port.Repositories) error {
		return fn(ctx, faultyRepos{Repositories: repos, store: s})
	})
}

type faultyRepos struct {
	port.Repositories
	store *faultyStore
}

func (r faultyRepos) Products() port.ProductRepository {
	return &faultyProducts{ProductRepository: r.Repositories.Products(), store: r.store}
}

func (r faultyRepos) Images() port.ImageRepository {
	return faultyImages{ImageRepository: r.Repositories.Images(), store: r.store}
}

type faultyImages struct {
	port.ImageRepository
	store *faultyStore
}

func (i faultyImages) PrimaryImageURL(ctx context.Context, productID string) (string, error) {
	url, err := i.ImageRepository.PrimaryImageURL(ctx, productID)
	if err == nil && i.store.onImageRead != nil {
		i.store.onImageRead(productID)
	}
	return url, err
}

type faultyProducts struct {
	port.ProductRepository
	store *faultyStore
}

// FindByID reports a stale stock figure when staleStock is set, as if another
// purchase committed after the read.
func (p *faultyProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	product, err := p.ProductRepository.FindByID(ctx, id)
	if err != nil || product == nil {
		return product, err
	}
	if p.store.staleStock > 0 {
		product.Stock = p.store.staleStock
		p.store.staleStock = 0
	}
	return product, nil
}

func (p *faultyProducts) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	p.store.mu.Lock()
	p.store.decrements = append(p.store.decrements, id)
	p.store.mu.Unlock()

	if p.store.decrementErr != nil {
		return false, p.store.decrementErr
	}
	return p.ProductRepository.DecrementStock(ctx, id, quantity)
}
