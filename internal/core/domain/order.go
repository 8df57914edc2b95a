package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID     string
	UserID string
	Status OrderStatus
	Items  []OrderItem
	// StockDecrementedAt is set in the same transaction that decrements stock;
	// a non-nil value makes further decrements for this order a no-op.
	StockDecrementedAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (o Order) StockDecremented() bool {
	return o.StockDecrementedAt != nil
}

type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i OrderItem) Key() StockKey {
	return StockKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

// Total returns the sum of quantity * unit price over all items.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Decrements merges the order's items by stock key and returns them in key order.
func (o Order) Decrements() []LineRequest {
	merged := make(map[StockKey]int, len(o.Items))
	for _, it := range o.Items {
		merged[it.Key()] += it.Quantity
	}

	lines := make([]LineRequest, 0, len(merged))
	for key, qty := range merged {
		lines = append(lines, LineRequest{ProductID: key.ProductID, VariantID: key.VariantID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Key().Less(lines[j].Key())
	})
	return lines
}
