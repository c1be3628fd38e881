package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CancellableStatuses are the states an order may be cancelled from.
var CancellableStatuses = []OrderStatus{OrderStatusPending, OrderStatusConfirmed}

type Order struct {
	ID           string
	UserID       string
	Status       OrderStatus
	Items        []LineItem
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Recalculate sums the line items into the order totals.
func (o *Order) Recalculate() {
	o.Subtotal, o.Discount, o.Tax, o.Total = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, item := range o.Items {
		o.Subtotal = o.Subtotal.Add(item.Subtotal)
		o.Discount = o.Discount.Add(item.Discount)
		o.Tax = o.Tax.Add(item.Tax)
		o.Total = o.Total.Add(item.Total)
	}
}

func (o *Order) CanCancel() bool {
	for _, s := range CancellableStatuses {
		if o.Status == s {
			return true
		}
	}
	return false
}
