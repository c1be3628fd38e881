package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	RequestID string        `json:"request_id"`
	UserID    string        `json:"user_id"`
	Items     []ItemRequest `json:"items"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type LineItemResponse struct {
	ID        string                 `json:"id"`
	ProductID string                 `json:"product_id"`
	Snapshot  domain.ProductSnapshot `json:"product_snapshot"`
	Quantity  int                    `json:"quantity"`
	Price     decimal.Decimal        `json:"price"`
	CompareAt decimal.NullDecimal    `json:"compare_at"`
	Subtotal  decimal.Decimal        `json:"subtotal"`
	Discount  decimal.Decimal        `json:"discount"`
	Tax       decimal.Decimal        `json:"tax"`
	Total     decimal.Decimal        `json:"total"`
}

type OrderResponse struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	Status       domain.OrderStatus `json:"status"`
	Items        []LineItemResponse `json:"items"`
	Subtotal     decimal.Decimal    `json:"subtotal"`
	Discount     decimal.Decimal    `json:"discount"`
	Tax          decimal.Decimal    `json:"tax"`
	Total        decimal.Decimal    `json:"total"`
	CancelReason string             `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func newOrderResponse(o *domain.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:           o.ID,
		UserID:       o.UserID,
		Status:       o.Status,
		Items:        make([]LineItemResponse, 0, len(o.Items)),
		Subtotal:     o.Subtotal,
		Discount:     o.Discount,
		Tax:          o.Tax,
		Total:        o.Total,
		CancelReason: o.CancelReason,
		CreatedAt:    o.CreatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, LineItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Snapshot:  item.Snapshot,
			Quantity:  item.Quantity,
			Price:     item.Price,
			CompareAt: item.CompareAt,
			Subtotal:  item.Subtotal,
			Discount:  item.Discount,
			Tax:       item.Tax,
			Total:     item.Total,
		})
	}
	return resp
}

type ProductRequest struct {
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"short_description"`
	SKU              string              `json:"sku"`
	Price            decimal.Decimal     `json:"price"`
	CompareAtPrice   decimal.NullDecimal `json:"compare_at_price"`
	TrackInventory   bool                `json:"track_inventory"`
	Stock            int                 `json:"stock"`
	Version          int                 `json:"version"`
}

func (r ProductRequest) toDomain(id string) *domain.Product {
	return &domain.Product{
		ID:               id,
		Name:             r.Name,
		Description:      r.Description,
		ShortDescription: r.ShortDescription,
		SKU:              r.SKU,
		Price:            r.Price,
		CompareAtPrice:   r.CompareAtPrice,
		TrackInventory:   r.TrackInventory,
		Stock:            r.Stock,
		Version:          r.Version,
	}
}

type ProductResponse struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"short_description"`
	SKU              string              `json:"sku"`
	Price            decimal.Decimal     `json:"price"`
	CompareAtPrice   decimal.NullDecimal `json:"compare_at_price"`
	TrackInventory   bool                `json:"track_inventory"`
	Stock            int                 `json:"stock"`
	Version          int                 `json:"version"`
}

func newProductResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		ShortDescription: p.ShortDescription,
		SKU:              p.SKU,
		Price:            p.Price,
		CompareAtPrice:   p.CompareAtPrice,
		TrackInventory:   p.TrackInventory,
		Stock:            p.Stock,
		Version:          p.Version,
	}
}

type ImageRequest struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary"`
}

type ImageResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary"`
	Position  int    `json:"position"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
