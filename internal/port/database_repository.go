package port

import (
	"context"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

type InventoryRepository interface {
	// GetRecord returns the record for key, or nil when it does not exist
	GetRecord(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error)

	// SetStock creates or overwrites the quantity of a record
	SetStock(ctx context.Context, key domain.StockKey, quantity int) error

	// DecrementForOrder applies every line of the order in one transaction using
	// conditional decrements, and marks the order so a repeat call is a no-op
	DecrementForOrder(ctx context.Context, orderID string) (domain.DecrementResult, error)
}

type OrderRepository interface {
	// CreateOrder persists an order together with its items
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder loads an order with its items, or nil when it does not exist
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}
