package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/service"
)

type GRPCHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

var _ OrderServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(orderService *service.OrderService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orderService: orderService, logger: logger}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
	items := make([]service.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := h.orderService.PlaceOrder(ctx, service.PlaceOrderRequest{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Items:     items,
	})
	if err != nil {
		return nil, h.statusError("PlaceOrder", err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*OrderResponse, error) {
	order, err := h.orderService.CancelOrder(ctx, req.OrderID, req.Reason)
	if err != nil {
		return nil, h.statusError("CancelOrder", err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	order, err := h.orderService.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.statusError("GetOrder", err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) statusError(method string, err error) error {
	_, code, message := classify(err)
	if code == codes.Internal {
		h.logger.Error("grpc call failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(code, message)
}
