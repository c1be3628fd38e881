package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderPlaced    EventType = "order.placed"
	EventOrderCancelled EventType = "order.cancelled"
)

type EventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type OrderEvent struct {
	Type       EventType       `json:"type"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Items      []EventItem     `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewOrderEvent(t EventType, order *Order) OrderEvent {
	items := make([]EventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, EventItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return OrderEvent{
		Type:       t,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Items:      items,
		Total:      order.Total,
		Reason:     order.CancelReason,
		OccurredAt: time.Now().UTC(),
	}
}
