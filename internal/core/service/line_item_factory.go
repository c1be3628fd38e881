package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// LineItemFactory turns a (product, quantity) pair into a persisted line item
// with a frozen product snapshot, taking the units out of tracked inventory.
type LineItemFactory struct {
	uow    port.UnitOfWork
	cache  port.CacheRepository
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLineItemFactory creates a factory. cache may be nil, in which case
// primary images are always read from the image repository.
func NewLineItemFactory(uow port.UnitOfWork, cache port.CacheRepository, logger *zap.Logger, tracer trace.Tracer) *LineItemFactory {
	return &LineItemFactory{
		uow:    uow,
		cache:  cache,
		logger: logger,
		tracer: tracer,
	}
}

// CreateLineItem creates one line item for orderID in its own transaction.
// The stock decrement and the line item insert commit or fail together.
func (f *LineItemFactory) CreateLineItem(ctx context.Context, orderID, productID string, quantity int) (*domain.LineItem, error) {
	if err := validateItem(orderID, productID, quantity); err != nil {
		return nil, err
	}

	var item *domain.LineItem
	err := f.uow.Atomic(ctx, func(ctx context.Context, repos port.Repositories) error {
		var err error
		item, err = f.create(ctx, repos, orderID, productID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (f *LineItemFactory) create(ctx context.Context, repos port.Repositories, orderID, productID string, quantity int) (*domain.LineItem, error) {
	pending, err := f.insert(ctx, repos, orderID, productID, quantity)
	if err != nil {
		return nil, err
	}
	if err := f.reserve(ctx, repos, pending); err != nil {
		return nil, err
	}
	return pending.item, nil
}

// pendingItem is a persisted line item whose stock has not been taken yet.
type pendingItem struct {
	item    *domain.LineItem
	tracked bool
}

// insert checks availability and persists the line item with its snapshot.
// It reads the product without locking it.
func (f *LineItemFactory) insert(ctx context.Context, repos port.Repositories, orderID, productID string, quantity int) (pendingItem, error) {
	ctx, span := f.tracer.Start(ctx, "line_item.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("product.id", productID),
		attribute.Int("line_item.quantity", quantity),
	)

	product, err := repos.Products().FindByID(ctx, productID)
	if err != nil {
		span.SetStatus(codes.Error, "load product failed")
		return pendingItem{}, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		span.SetStatus(codes.Error, "product not found")
		return pendingItem{}, &domain.NotFoundError{Entity: "product", ID: productID}
	}

	if !product.HasStock(quantity) {
		span.SetStatus(codes.Error, "insufficient stock")
		return pendingItem{}, insufficientStock(product, quantity)
	}

	imageURL, err := f.primaryImageURL(ctx, repos, productID)
	if err != nil {
		return pendingItem{}, err
	}

	item, err := domain.NewLineItem(orderID, product, imageURL, quantity)
	if err != nil {
		return pendingItem{}, err
	}
	if err := repos.LineItems().Create(ctx, item); err != nil {
		span.SetStatus(codes.Error, "persist line item failed")
		return pendingItem{}, fmt.Errorf("persist line item: %w", err)
	}

	span.SetAttributes(attribute.Bool("inventory.tracked", product.TrackInventory))
	span.SetStatus(codes.Ok, "line item created")

	f.logger.Debug("line item created",
		zap.String("order_id", orderID),
		zap.String("product_id", productID),
		zap.String("line_item_id", item.ID),
		zap.Int("quantity", quantity),
		zap.String("total", item.Total.String()),
	)
	return pendingItem{item: item, tracked: product.TrackInventory}, nil
}

// reserve takes the item's quantity out of tracked inventory with the
// conditional decrement.
func (f *LineItemFactory) reserve(ctx context.Context, repos port.Repositories, pending pendingItem) error {
	if !pending.tracked {
		return nil
	}
	item := pending.item

	ctx, span := f.tracer.Start(ctx, "stock.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", item.ProductID),
		attribute.Int("line_item.quantity", item.Quantity),
	)

	ok, err := repos.Products().DecrementStock(ctx, item.ProductID, item.Quantity)
	if err != nil {
		span.SetStatus(codes.Error, "decrement stock failed")
		return fmt.Errorf("decrement stock: %w", err)
	}
	if !ok {
		// Lost a race with another purchase between the check and the write.
		if err := f.recheck(ctx, repos, item.ProductID, item.Quantity); err != nil {
			span.SetStatus(codes.Error, "insufficient stock")
			return err
		}
	}

	span.SetStatus(codes.Ok, "stock reserved")
	return nil
}

// recheck explains a failed conditional decrement. It returns nil only when the
// product stopped tracking inventory in the meantime.
func (f *LineItemFactory) recheck(ctx context.Context, repos port.Repositories, productID string, quantity int) error {
	fresh, err := repos.Products().LockByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("reload product: %w", err)
	}
	if fresh == nil {
		return &domain.NotFoundError{Entity: "product", ID: productID}
	}
	if !fresh.TrackInventory {
		return nil
	}
	return insufficientStock(fresh, quantity)
}

func (f *LineItemFactory) primaryImageURL(ctx context.Context, repos port.Repositories, productID string) (string, error) {
	if f.cache != nil {
		url, ok, err := f.cache.GetImageURL(ctx, productID)
		if err != nil {
			f.logger.Warn("image cache read failed", zap.String("product_id", productID), zap.Error(err))
		} else if ok {
			return url, nil
		}
	}

	url, err := repos.Images().PrimaryImageURL(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("resolve primary image: %w", err)
	}

	if f.cache != nil {
		if err := f.cache.FillImageURL(ctx, productID, url); err != nil {
			f.logger.Warn("image cache write failed", zap.String("product_id", productID), zap.Error(err))
		}
	}
	return url, nil
}

func insufficientStock(p *domain.Product, requested int) error {
	return &domain.InsufficientStockError{
		ProductID:   p.ID,
		ProductName: p.Name,
		Requested:   requested,
		Available:   p.Stock,
	}
}

func validateItem(orderID, productID string, quantity int) error {
	if orderID == "" {
		return &domain.ValidationError{Field: "order_id", Msg: "must not be empty"}
	}
	return validateProductQuantity(productID, quantity)
}

func validateProductQuantity(productID string, quantity int) error {
	if productID == "" {
		return &domain.ValidationError{Field: "product_id", Msg: "must not be empty"}
	}
	if quantity < 1 {
		return &domain.ValidationError{Field: "quantity", Msg: "must be at least 1"}
	}
	return nil
}
