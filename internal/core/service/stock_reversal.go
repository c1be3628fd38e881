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

// StockReversal puts the quantity of a line item back into the inventory of
// the product it was bought from.
type StockReversal struct {
	uow    port.UnitOfWork
	logger *zap.Logger
	tracer trace.Tracer
}

func NewStockReversal(uow port.UnitOfWork, logger *zap.Logger, tracer trace.Tracer) *StockReversal {
	return &StockReversal{uow: uow, logger: logger, tracer: tracer}
}

// RestoreStock is a no-op when the product was deleted or does not track
// inventory. The line item itself is never modified.
func (s *StockReversal) RestoreStock(ctx context.Context, item *domain.LineItem) error {
	return s.uow.Atomic(ctx, func(ctx context.Context, repos port.Repositories) error {
		return s.restore(ctx, repos, item)
	})
}

func (s *StockReversal) restore(ctx context.Context, repos port.Repositories, item *domain.LineItem) error {
	ctx, span := s.tracer.Start(ctx, "stock.restore")
	defer span.End()

	span.SetAttributes(
		attribute.String("line_item.id", item.ID),
		attribute.String("product.id", item.ProductID),
		attribute.Int("line_item.quantity", item.Quantity),
	)

	product, err := repos.Products().FindByID(ctx, item.ProductID)
	if err != nil {
		span.SetStatus(codes.Error, "load product failed")
		return fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		s.logger.Info("product gone, skipping stock restore",
			zap.String("line_item_id", item.ID),
			zap.String("product_id", item.ProductID),
		)
		span.SetAttributes(attribute.Bool("inventory.restored", false))
		return nil
	}
	if !product.TrackInventory {
		span.SetAttributes(attribute.Bool("inventory.restored", false))
		return nil
	}

	if err := repos.Products().IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
		span.SetStatus(codes.Error, "increment stock failed")
		return fmt.Errorf("restore stock: %w", err)
	}

	span.SetAttributes(attribute.Bool("inventory.restored", true))
	span.SetStatus(codes.Ok, "stock restored")
	return nil
}
