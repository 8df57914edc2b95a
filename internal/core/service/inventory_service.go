package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
	"github.com/cartel-codes/theme-nv-sub002/internal/port"
)

// Decrement outcomes reported to metrics.
const (
	OutcomeApplied           = "applied"
	OutcomeDuplicate         = "duplicate"
	OutcomeOrderNotFound     = "order_not_found"
	OutcomeRecordNotFound    = "record_not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeTransactionFailed = "transaction_failed"
	OutcomeError             = "error"
)

// InventoryService guards stock: an advisory availability check before
// checkout, and the authoritative decrement once payment is confirmed.
type InventoryService struct {
	inventory port.InventoryRepository
	publisher port.StockEventPublisher
	metrics   port.Metrics
	logger    *zap.Logger
}

type Option func(*InventoryService)

func WithPublisher(p port.StockEventPublisher) Option {
	return func(s *InventoryService) { s.publisher = p }
}

func WithMetrics(m port.Metrics) Option {
	return func(s *InventoryService) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *InventoryService) { s.logger = l }
}

func NewInventoryService(inventory port.InventoryRepository, opts ...Option) *InventoryService {
	s := &InventoryService{
		inventory: inventory,
		metrics:   nopMetrics{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAvailability reports the first line, in input order, whose record is
// missing or holds less than the requested quantity. It has no side effects and
// its answer can be stale by the time the order is decremented.
func (s *InventoryService) CheckAvailability(ctx context.Context, items []domain.LineRequest) (domain.AvailabilityResult, error) {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return domain.AvailabilityResult{}, err
		}
	}

	for _, it := range items {
		rec, err := s.inventory.GetRecord(ctx, it.Key())
		if err != nil {
			return domain.AvailabilityResult{}, fmt.Errorf("lookup %s: %w", it.Key(), err)
		}

		var result domain.AvailabilityResult
		switch {
		case rec == nil:
			result = domain.NotInInventory(it.Key())
		case rec.Quantity < it.Quantity:
			result = domain.InsufficientStock(it.Key(), it.Quantity, rec.Quantity)
		default:
			continue
		}

		s.metrics.ObserveAvailability(false)
		s.logger.Debug("availability check failed",
			zap.String("product_id", it.ProductID),
			zap.String("variant_id", it.VariantID),
			zap.String("reason", result.Message),
		)
		return result, nil
	}

	s.metrics.ObserveAvailability(true)
	return domain.Available(), nil
}

// DecrementStockForOrder applies every line of a paid order in a single
// transaction. Calling it again for the same order is a no-op.
func (s *InventoryService) DecrementStockForOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrOrderNotFound)
	}

	res, err := s.inventory.DecrementForOrder(ctx, orderID)
	if err != nil {
		outcome := decrementOutcome(err)
		s.metrics.ObserveDecrement(outcome)
		s.logger.Warn("stock decrement rejected",
			zap.String("order_id", orderID),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return err
	}

	if !res.Applied {
		s.metrics.ObserveDecrement(OutcomeDuplicate)
		s.logger.Info("stock already decremented for order", zap.String("order_id", orderID))
		return nil
	}

	s.metrics.ObserveDecrement(OutcomeApplied)
	s.logger.Info("stock decremented",
		zap.String("order_id", orderID),
		zap.Int("lines", len(res.Levels)),
	)
	s.publish(ctx, res)
	return nil
}

func (s *InventoryService) publish(ctx context.Context, res domain.DecrementResult) {
	var depleted []domain.StockLevel
	for _, lvl := range res.Levels {
		if lvl.Depleted() {
			depleted = append(depleted, lvl)
		}
	}
	if len(depleted) > 0 {
		s.metrics.ObserveDepleted(len(depleted))
	}

	if s.publisher == nil {
		return
	}

	if err := s.publisher.PublishStockDecremented(ctx, res.OrderID, res.Levels); err != nil {
		s.logger.Error("publish stock decremented", zap.String("order_id", res.OrderID), zap.Error(err))
	}
	for _, lvl := range depleted {
		if err := s.publisher.PublishStockDepleted(ctx, res.OrderID, lvl); err != nil {
			s.logger.Error("publish stock depleted",
				zap.String("order_id", res.OrderID),
				zap.String("stock_key", lvl.Key.String()),
				zap.Error(err),
			)
		}
	}
}

// SetStock overwrites the quantity of a record, creating it when needed.
func (s *InventoryService) SetStock(ctx context.Context, key domain.StockKey, quantity int) error {
	if key.ProductID == "" {
		return fmt.Errorf("%w: productId is required", domain.ErrInvalidLine)
	}
	if quantity < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}

	if err := s.inventory.SetStock(ctx, key, quantity); err != nil {
		return fmt.Errorf("set stock %s: %w", key, err)
	}

	s.logger.Info("stock set", zap.String("stock_key", key.String()), zap.Int("quantity", quantity))
	return nil
}

func (s *InventoryService) GetStock(ctx context.Context, key domain.StockKey) (domain.InventoryRecord, error) {
	rec, err := s.inventory.GetRecord(ctx, key)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("get stock %s: %w", key, err)
	}
	if rec == nil {
		return domain.InventoryRecord{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, key)
	}
	return *rec, nil
}

func decrementOutcome(err error) string {
	var txErr *domain.TransactionError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return OutcomeOrderNotFound
	case errors.Is(err, domain.ErrRecordNotFound):
		return OutcomeRecordNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.As(err, &txErr):
		return OutcomeTransactionFailed
	default:
		return OutcomeError
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveAvailability(bool) {}
func (nopMetrics) ObserveDecrement(string)  {}
func (nopMetrics) ObserveDepleted(int)      {}
