package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrRecordNotFound    = errors.New("inventory record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidLine       = errors.New("invalid line item")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// StockError names the record a decrement could not be applied to.
type StockError struct {
	Key       StockKey
	Requested int
	Err       error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: %s (requested %d)", e.Err, e.Key, e.Requested)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// TransactionError reports a multi-line decrement that was rolled back as a
// whole. Callers may retry the order as a unit.
type TransactionError struct {
	OrderID string
	Err     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("stock transaction for order %s aborted: %v", e.OrderID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
