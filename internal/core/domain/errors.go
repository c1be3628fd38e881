package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrConflict          = errors.New("concurrent modification")
)

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError is returned when a tracked product cannot cover the
// requested quantity.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ItemError ties a failure during order placement to the requested
// product/quantity pair that caused it.
type ItemError struct {
	Index     int
	ProductID string
	Quantity  int
	Err       error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (product %s, quantity %d): %v", e.Index, e.ProductID, e.Quantity, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
