package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductSnapshot is a copy of the product display fields taken when the line
// item was created. It never follows later catalog edits.
type ProductSnapshot struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SKU         string `json:"sku"`
	ImageURL    string `json:"image_url,omitempty"`
}

type LineItem struct {
	ID        string
	OrderID   string
	ProductID string
	Snapshot  ProductSnapshot
	Quantity  int
	Price     decimal.Decimal
	CompareAt decimal.NullDecimal
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	CreatedAt time.Time
}

// NewLineItem freezes the product's current price and display fields into a
// new line item for orderID.
func NewLineItem(orderID string, product *Product, imageURL string, quantity int) (*LineItem, error) {
	item := &LineItem{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: product.ID,
		Snapshot: ProductSnapshot{
			Name:        product.Name,
			Description: product.SnapshotDescription(),
			SKU:         product.SKU,
			ImageURL:    imageURL,
		},
		Quantity:  quantity,
		Price:     product.Price,
		CompareAt: product.CompareAtPrice,
		Discount:  decimal.Zero,
		Tax:       decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	if err := PrepareLineItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

// PrepareLineItem validates item and recomputes Subtotal and Total from
// Price, Quantity, Discount and Tax. Every write path calls it before
// persisting; values already in Subtotal and Total are discarded.
func PrepareLineItem(item *LineItem) error {
	if item.Quantity < 1 {
		return &ValidationError{Field: "quantity", Msg: "must be at least 1"}
	}
	if item.Price.IsNegative() {
		return &ValidationError{Field: "price", Msg: "must not be negative"}
	}
	if item.Discount.IsNegative() {
		return &ValidationError{Field: "discount", Msg: "must not be negative"}
	}
	if item.Tax.IsNegative() {
		return &ValidationError{Field: "tax", Msg: "must not be negative"}
	}

	item.Subtotal = item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
	item.Total = item.Subtotal.Sub(item.Discount).Add(item.Tax)
	return nil
}
