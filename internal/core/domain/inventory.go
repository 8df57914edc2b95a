package domain

import "time"

// StockKey identifies a stock location. An empty VariantID addresses the
// product-level record.
type StockKey struct {
	ProductID string
	VariantID string
}

func (k StockKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

// Less orders keys so that multi-row updates always lock rows in the same order.
func (k StockKey) Less(other StockKey) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID < other.ProductID
	}
	return k.VariantID < other.VariantID
}

type InventoryRecord struct {
	ProductID string
	VariantID string
	Quantity  int
	UpdatedAt time.Time
}

func (r InventoryRecord) Key() StockKey {
	return StockKey{ProductID: r.ProductID, VariantID: r.VariantID}
}

// StockLevel is the quantity left on a record after a decrement was applied.
type StockLevel struct {
	Key       StockKey
	Quantity  int
	Decrement int
}

func (l StockLevel) Depleted() bool {
	return l.Quantity == 0
}

// DecrementResult is the outcome of applying an order's decrements. Applied is
// false when the order had already been decremented and nothing changed.
type DecrementResult struct {
	OrderID string
	Applied bool
	Levels  []StockLevel
}
