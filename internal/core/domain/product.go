package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry a line item is purchased from. Stock and
// TrackInventory form its inventory record.
type Product struct {
	ID               string
	Name             string
	Description      string
	ShortDescription string
	SKU              string
	Price            decimal.Decimal
	CompareAtPrice   decimal.NullDecimal
	TrackInventory   bool
	Stock            int
	Version          int // optimistic locking for catalog edits
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasStock reports whether quantity units can be sold. Untracked products are
// always available.
func (p *Product) HasStock(quantity int) bool {
	if !p.TrackInventory {
		return true
	}
	return p.Stock >= quantity
}

// SnapshotDescription returns the long description, or the short one when the
// long one is empty.
func (p *Product) SnapshotDescription() string {
	if p.Description != "" {
		return p.Description
	}
	return p.ShortDescription
}

func (p *Product) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Msg: "must not be empty"}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Msg: "must not be negative"}
	}
	if p.CompareAtPrice.Valid && p.CompareAtPrice.Decimal.IsNegative() {
		return &ValidationError{Field: "compare_at_price", Msg: "must not be negative"}
	}
	if p.Stock < 0 {
		return &ValidationError{Field: "stock", Msg: "must not be negative"}
	}
	return nil
}

type ProductImage struct {
	ID        string
	ProductID string
	URL       string
	IsPrimary bool
	Position  int
}

// NormalizeImages leaves at most one image flagged primary. When several are
// flagged, the last one wins. Positions are rewritten to slice order.
func NormalizeImages(images []ProductImage) []ProductImage {
	primary := -1
	for i := range images {
		if images[i].IsPrimary {
			primary = i
		}
	}
	out := make([]ProductImage, len(images))
	for i, img := range images {
		img.IsPrimary = i == primary
		img.Position = i
		out[i] = img
	}
	return out
}

// PrimaryImageURL returns the URL of the primary image, or "" if there is none.
func PrimaryImageURL(images []ProductImage) string {
	for _, img := range images {
		if img.IsPrimary {
			return img.URL
		}
	}
	return ""
}
