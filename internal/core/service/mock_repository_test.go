package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

var errStoreUnavailable = errors.New("store unavailable")

// Mock repository covering inventory, orders and idempotency keys
type mockStore struct {
	mu             sync.Mutex
	records        map[domain.StockKey]int
	orders         map[string]domain.Order
	idempotencySet map[string]bool

	lookups         int
	getErr          error
	createFailures  int
	releaseRequests []string
}

func newMockStore() *mockStore {
	return &mockStore{
		records:        make(map[domain.StockKey]int),
		orders:         make(map[string]domain.Order),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockStore) GetRecord(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++
	if m.getErr != nil {
		return nil, m.getErr
	}
	qty, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &domain.InventoryRecord{ProductID: key.ProductID, VariantID: key.VariantID, Quantity: qty}, nil
}

func (m *mockStore) SetStock(ctx context.Context, key domain.StockKey, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = quantity
	return nil
}

func (m *mockStore) DecrementForOrder(ctx context.Context, orderID string) (domain.DecrementResult, error) {
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
		qty, ok := m.records[line.Key()]
		if !ok {
			return res, &domain.StockError{Key: line.Key(), Requested: line.Quantity, Err: domain.ErrRecordNotFound}
		}
		if qty < line.Quantity {
			return res, &domain.StockError{Key: line.Key(), Requested: line.Quantity, Err: domain.ErrInsufficientStock}
		}
	}

	for _, line := range lines {
		m.records[line.Key()] -= line.Quantity
		res.Levels = append(res.Levels, domain.StockLevel{
			Key:       line.Key(),
			Quantity:  m.records[line.Key()],
			Decrement: line.Quantity,
		})
	}

	now := time.Now()
	order.StockDecrementedAt = &now
	m.orders[orderID] = order
	res.Applied = true
	return res, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createFailures > 0 {
		m.createFailures--
		return errStoreUnavailable
	}
	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	m.orders[order.ID] = order
	return nil
}

func (m *mockStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *mockStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockStore) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseRequests = append(m.releaseRequests, key)
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
