package domain

import "fmt"

// LineRequest is a single requested (product, variant, quantity) tuple.
type LineRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

func (l LineRequest) Key() StockKey {
	return StockKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

func (l LineRequest) Validate() error {
	if l.ProductID == "" {
		return fmt.Errorf("%w: productId is required", ErrInvalidLine)
	}
	if l.Quantity <= 0 {
		return fmt.Errorf("%w: quantity for %s must be positive, got %d", ErrInvalidLine, l.Key(), l.Quantity)
	}
	return nil
}

// AvailabilityResult reports the first unsatisfiable line, if any.
type AvailabilityResult struct {
	Available bool
	ProductID string
	VariantID string
	Message   string
}

func Available() AvailabilityResult {
	return AvailabilityResult{Available: true}
}

func NotInInventory(key StockKey) AvailabilityResult {
	return AvailabilityResult{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Message:   fmt.Sprintf("product %s is not stocked", key),
	}
}

func InsufficientStock(key StockKey, requested, available int) AvailabilityResult {
	return AvailabilityResult{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Message:   fmt.Sprintf("insufficient stock for %s: requested %d, available %d", key, requested, available),
	}
}
