package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type ProductRepository interface {
	// FindByID returns nil, nil when the product does not exist
	FindByID(ctx context.Context, id string) (*domain.Product, error)

	// LockByID is FindByID with a locking read: it sees the latest committed
	// row even inside a transaction that already read an older snapshot.
	LockByID(ctx context.Context, id string) (*domain.Product, error)

	Create(ctx context.Context, product *domain.Product) error

	// Update saves catalog fields with a version check for optimistic locking
	Update(ctx context.Context, product *domain.Product) error

	Delete(ctx context.Context, id string) error

	// DecrementStock atomically decreases stock only if stock >= quantity,
	// returns false if insufficient. Stock changes bump Version so an Update
	// based on an older read fails with a conflict.
	DecrementStock(ctx context.Context, id string, quantity int) (bool, error)

	// IncrementStock restores stock for tracked products
	IncrementStock(ctx context.Context, id string, quantity int) error
}

type ImageRepository interface {
	// PrimaryImageURL returns "" when the product has no primary image
	PrimaryImageURL(ctx context.Context, productID string) (string, error)

	ListByProduct(ctx context.Context, productID string) ([]domain.ProductImage, error)

	// ReplaceForProduct normalizes and stores the full image set of a product
	ReplaceForProduct(ctx context.Context, productID string, images []domain.ProductImage) error
}

type LineItemRepository interface {
	// Create recomputes derived totals before persisting
	Create(ctx context.Context, item *domain.LineItem) error

	ListByOrder(ctx context.Context, orderID string) ([]domain.LineItem, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error

	// FindByID returns nil, nil when the order does not exist
	FindByID(ctx context.Context, id string) (*domain.Order, error)

	UpdateTotals(ctx context.Context, order *domain.Order) error

	// TransitionStatus moves the order to `to` only if its current status is in
	// `from`, returns false otherwise
	TransitionStatus(ctx context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus, reason string) (bool, error)
}

type Repositories interface {
	Products() ProductRepository
	Images() ImageRepository
	LineItems() LineItemRepository
	Orders() OrderRepository
}

type UnitOfWork interface {
	Repositories

	// Atomic runs fn with repositories bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
