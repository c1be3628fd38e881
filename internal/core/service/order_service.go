package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var (
	ErrDuplicateRequest  = domain.ErrDuplicateRequest
	ErrInsufficientStock = domain.ErrInsufficientStock
)

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type PlaceOrderRequest struct {
	RequestID string // optional idempotency key
	UserID    string
	Items     []ItemRequest
}

// Validate checks every item before anything is written.
func (r PlaceOrderRequest) Validate() error {
	if r.UserID == "" {
		return &domain.ValidationError{Field: "user_id", Msg: "must not be empty"}
	}
	if len(r.Items) == 0 {
		return &domain.ValidationError{Field: "items", Msg: "must not be empty"}
	}
	for i, it := range r.Items {
		if err := validateProductQuantity(it.ProductID, it.Quantity); err != nil {
			return &domain.ItemError{Index: i, ProductID: it.ProductID, Quantity: it.Quantity, Err: err}
		}
	}
	return nil
}

type OrderService struct {
	uow       port.UnitOfWork
	factory   *LineItemFactory
	reversal  *StockReversal
	cache     port.CacheRepository
	publisher port.EventPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewOrderService wires the order workflow. cache and publisher may be nil.
func NewOrderService(
	uow port.UnitOfWork,
	factory *LineItemFactory,
	reversal *StockReversal,
	cache port.CacheRepository,
	publisher port.EventPublisher,
	logger *zap.Logger,
	tracer trace.Tracer,
) *OrderService {
	return &OrderService{
		uow:       uow,
		factory:   factory,
		reversal:  reversal,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
	}
}

// PlaceOrder creates the order and all its line items in one transaction. If
// any item fails, nothing is persisted and no stock is taken; the returned
// error is a *domain.ItemError naming the failing product and quantity.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	idempotencyKey := ""
	if req.RequestID != "" && s.cache != nil {
		idempotencyKey = fmt.Sprintf("order:%s:%s", req.UserID, req.RequestID)

		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
	}

	order, err := s.placeOrder(ctx, req)
	if err != nil {
		if idempotencyKey != "" {
			if relErr := s.cache.ReleaseIdempotency(ctx, idempotencyKey); relErr != nil {
				s.logger.Warn("failed to release idempotency key",
					zap.String("key", idempotencyKey), zap.Error(relErr))
			}
		}
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total.String()),
	)
	s.publish(ctx, domain.EventOrderPlaced, order)
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.place")
	defer span.End()

	now := time.Now().UTC()
	order := &domain.Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Status:    domain.OrderStatusPending,
		Subtotal:  decimal.Zero,
		Discount:  decimal.Zero,
		Tax:       decimal.Zero,
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int("order.item_count", len(req.Items)),
	)

	err := s.uow.Atomic(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := repos.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		pending := make([]pendingItem, len(req.Items))
		for i, it := range req.Items {
			p, err := s.factory.insert(ctx, repos, order.ID, it.ProductID, it.Quantity)
			if err != nil {
				return &domain.ItemError{Index: i, ProductID: it.ProductID, Quantity: it.Quantity, Err: err}
			}
			pending[i] = p
		}

		// Stock rows are locked in product ID order so concurrent orders over
		// the same products cannot deadlock each other.
		for _, i := range reserveOrder(req.Items) {
			if err := s.factory.reserve(ctx, repos, pending[i]); err != nil {
				it := req.Items[i]
				return &domain.ItemError{Index: i, ProductID: it.ProductID, Quantity: it.Quantity, Err: err}
			}
		}

		for _, p := range pending {
			order.Items = append(order.Items, *p.item)
		}

		order.Recalculate()
		if err := repos.Orders().UpdateTotals(ctx, order); err != nil {
			return fmt.Errorf("update order totals: %w", err)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("order placement rolled back",
			zap.String("order_id", order.ID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "order placed")
	return order, nil
}

// CancelOrder moves a pending or confirmed order to cancelled and restores the
// stock of every line item. It returns only after the restores committed.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	if orderID == "" {
		return nil, &domain.ValidationError{Field: "order_id", Msg: "must not be empty"}
	}

	ctx, span := s.tracer.Start(ctx, "order.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var order *domain.Order
	err := s.uow.Atomic(ctx, func(ctx context.Context, repos port.Repositories) error {
		var err error
		order, err = repos.Orders().FindByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if order == nil {
			return &domain.NotFoundError{Entity: "order", ID: orderID}
		}
		if !order.CanCancel() {
			return fmt.Errorf("cancel order %s in status %s: %w", orderID, order.Status, domain.ErrInvalidTransition)
		}

		// The status change is conditional, so a concurrent cancel restores nothing twice.
		ok, err := repos.Orders().TransitionStatus(ctx, orderID, domain.CancellableStatuses, domain.OrderStatusCancelled, reason)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if !ok {
			return fmt.Errorf("cancel order %s in status %s: %w", orderID, order.Status, domain.ErrInvalidTransition)
		}

		items, err := repos.LineItems().ListByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load line items: %w", err)
		}
		for i := range items {
			if err := s.reversal.restore(ctx, repos, &items[i]); err != nil {
				return err
			}
		}

		order.Status = domain.OrderStatusCancelled
		order.CancelReason = reason
		order.Items = items
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "order cancelled")
	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("reason", reason),
		zap.Int("items_restored", len(order.Items)),
	)
	s.publish(ctx, domain.EventOrderCancelled, order)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.uow.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, &domain.NotFoundError{Entity: "order", ID: orderID}
	}

	items, err := s.uow.LineItems().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	order.Items = items
	return order, nil
}

// reserveOrder returns item indexes sorted by product ID, keeping request order
// for repeated products.
func reserveOrder(items []ItemRequest) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return items[idx[a]].ProductID < items[idx[b]].ProductID
	})
	return idx
}

func (s *OrderService) publish(ctx context.Context, t domain.EventType, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.NewOrderEvent(t, order)); err != nil {
		s.logger.Error("failed to publish order event",
			zap.String("type", string(t)),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}
