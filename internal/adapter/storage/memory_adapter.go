package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

// MemoryAdapter is a process-local inventory and order store. All state lives
// behind one mutex, so a decrement is atomic across every line of an order.
// Reset clears it between runs.
type MemoryAdapter struct {
	mu          sync.Mutex
	records     map[domain.StockKey]domain.InventoryRecord
	orders      map[string]domain.Order
	idempotency map[string]time.Time
	lastSweep   time.Time
	now         func() time.Time
}

const idempotencySweepInterval = time.Minute

func NewMemoryAdapter() *MemoryAdapter {
	m := &MemoryAdapter{now: time.Now}
	m.Reset()
	return m
}

func (m *MemoryAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[domain.StockKey]domain.InventoryRecord)
	m.orders = make(map[string]domain.Order)
	m.idempotency = make(map[string]time.Time)
	m.lastSweep = time.Time{}
}

func (m *MemoryAdapter) GetRecord(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryAdapter) SetStock(ctx context.Context, key domain.StockKey, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if quantity < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = domain.InventoryRecord{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Quantity:  quantity,
		UpdatedAt: m.now(),
	}
	return nil
}

func (m *MemoryAdapter) DecrementForOrder(ctx context.Context, orderID string) (domain.DecrementResult, error) {
	res := domain.DecrementResult{OrderID: orderID}
	if err := ctx.Err(); err != nil {
		return res, &domain.TransactionError{OrderID: orderID, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return res, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if order.StockDecremented() {
		return res, nil
	}

	lines := order.Decrements()
	for _, line := range lines {
		rec, ok := m.records[line.Key()]
		if !ok {
			return res, &domain.StockError{Key: line.Key(), Requested: line.Quantity, Err: domain.ErrRecordNotFound}
		}
		if rec.Quantity < line.Quantity {
			return res, &domain.StockError{Key: line.Key(), Requested: line.Quantity, Err: domain.ErrInsufficientStock}
		}
	}

	now := m.now()
	for _, line := range lines {
		rec := m.records[line.Key()]
		rec.Quantity -= line.Quantity
		rec.UpdatedAt = now
		m.records[line.Key()] = rec
		res.Levels = append(res.Levels, domain.StockLevel{Key: line.Key(), Quantity: rec.Quantity, Decrement: line.Quantity})
	}

	order.StockDecrementedAt = &now
	order.UpdatedAt = now
	m.orders[orderID] = order

	res.Applied = true
	return res, nil
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	m.orders[order.ID] = order
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return &order, nil
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= idempotencySweepInterval {
		m.sweepIdempotency(now)
	}
	if at, ok := m.idempotency[key]; ok && now.Sub(at) < idempotencyKeyTTL {
		return false, nil
	}
	m.idempotency[key] = now
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotency, key)
	return nil
}

// IdempotencyKeys reports how many keys are currently held.
func (m *MemoryAdapter) IdempotencyKeys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.idempotency)
}

// sweepIdempotency drops expired keys. Callers hold m.mu.
func (m *MemoryAdapter) sweepIdempotency(now time.Time) {
	for key, at := range m.idempotency {
		if now.Sub(at) >= idempotencyKeyTTL {
			delete(m.idempotency, key)
		}
	}
	m.lastSweep = now
}
