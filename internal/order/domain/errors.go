package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidID         = errors.New("invalid_order_id")
	ErrEmptyItems        = errors.New("empty_items")
	ErrInvalidItem       = errors.New("invalid_item")
	ErrInvalidSKU        = errors.New("invalid_sku")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
)

// LineError ties a line validation failure to its sku.
type LineError struct {
	SKU int64
	Err error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s: sku %d", e.Err.Error(), e.SKU)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

type StockError struct {
	SKU       int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %d: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
