package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

type failingIdempotency struct{}

type releaseFailing struct{ *mockStore }

func (releaseFailing) ReleaseIdempotency(context.Context, string) error {
	return errors.New("redis unavailable")
}

func (failingIdempotency) SetIdempotency(context.Context, string) (bool, error) {
	return false, errors.New("redis unavailable")
}

func (failingIdempotency) ReleaseIdempotency(context.Context, string) error {
	return errors.New("redis unavailable")
}

func paidItems() []domain.OrderItem {
	return []domain.OrderItem{
		{ProductID: "shirt", VariantID: "m", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
		{ProductID: "mug", Quantity: 1, UnitPrice: decimal.RequireFromString("8.00")},
	}
}

func TestRecordPaidOrder_Success(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, store, 10, nil)
	defer svc.Close()

	order, err := svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())
	require.NoError(t, err)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.False(t, order.StockDecremented())
	require.Len(t, order.Items, 2)
	for _, it := range order.Items {
		assert.NotEmpty(t, it.ID)
		assert.Equal(t, order.ID, it.OrderID)
	}
	assert.True(t, order.Total().Equal(decimal.RequireFromString("33.00")))

	select {
	case id := <-svc.GetDecrementQueue():
		assert.Equal(t, order.ID, id)
	default:
		t.Fatal("expected order to be queued for decrement")
	}

	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Len(t, stored.Items, 2)
}

func TestRecordPaidOrder_Validation(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, store, 10, nil)
	defer svc.Close()

	tests := []struct {
		name   string
		userID string
		items  []domain.OrderItem
	}{
		{name: "missing user", userID: "", items: paidItems()},
		{name: "no items", userID: "user-1"},
		{name: "zero quantity", userID: "user-1", items: []domain.OrderItem{{ProductID: "mug"}}},
		{name: "missing product", userID: "user-1", items: []domain.OrderItem{{Quantity: 1}}},
		{name: "negative price", userID: "user-1", items: []domain.OrderItem{
			{ProductID: "mug", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPaidOrder(context.Background(), "", tt.userID, tt.items)
			require.ErrorIs(t, err, domain.ErrInvalidLine)
		})
	}

	assert.Empty(t, svc.GetDecrementQueue())
}

func TestRecordPaidOrder_DuplicateRequest(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, store, 10, nil)
	defer svc.Close()

	_, err := svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())
	require.NoError(t, err)

	_, err = svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	// The same request id from another user is a different request.
	_, err = svc.RecordPaidOrder(context.Background(), "req-1", "user-2", paidItems())
	assert.NoError(t, err)

	assert.Len(t, svc.GetDecrementQueue(), 2)
}

func TestRecordPaidOrder_WithoutRequestIDIsNotDeduplicated(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, store, 10, nil)
	defer svc.Close()

	first, err := svc.RecordPaidOrder(context.Background(), "", "user-1", paidItems())
	require.NoError(t, err)
	second, err := svc.RecordPaidOrder(context.Background(), "", "user-1", paidItems())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestRecordPaidOrder_FailedWriteFreesRequestID(t *testing.T) {
	store := newMockStore()
	store.createFailures = 1
	svc := NewOrderService(store, store, 10, nil)
	defer svc.Close()

	_, err := svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())
	require.ErrorIs(t, err, errStoreUnavailable)
	assert.Equal(t, []string{"order:user-1:req-1"}, store.releaseRequests)
	assert.Zero(t, store.orderCount())
	assert.Empty(t, svc.GetDecrementQueue())

	// Retrying the same request after the transient failure records the order.
	order, err := svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())
	require.NoError(t, err)
	assert.Equal(t, 1, store.orderCount())
	assert.Equal(t, order.ID, <-svc.GetDecrementQueue())

	_, err = svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestRecordPaidOrder_CancelledWriteFreesRequestID(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, store, 10, nil)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RecordPaidOrder(ctx, "req-1", "user-1", paidItems())
	require.ErrorIs(t, err, context.Canceled)

	_, err = svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())
	require.NoError(t, err)
}

func TestRecordPaidOrder_ReleaseErrorKeepsCreateError(t *testing.T) {
	store := newMockStore()
	store.createFailures = 1
	svc := NewOrderService(store, releaseFailing{store}, 10, nil)
	defer svc.Close()

	_, err := svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())

	require.ErrorIs(t, err, errStoreUnavailable)
}

func TestRecordPaidOrder_AfterCloseDoesNotPanic(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, nil, 1, nil)

	_, err := svc.RecordPaidOrder(context.Background(), "", "user-1", paidItems())
	require.NoError(t, err)

	// A sender blocked on the full queue is released by Close.
	blocked := make(chan error, 1)
	go func() {
		_, err := svc.RecordPaidOrder(context.Background(), "", "user-1", paidItems())
		blocked <- err
	}()
	require.Eventually(t, func() bool { return store.orderCount() == 2 }, time.Second, 5*time.Millisecond)

	svc.Close()
	svc.Close()

	select {
	case err := <-blocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sender still blocked after Close")
	}

	order, err := svc.RecordPaidOrder(context.Background(), "", "user-1", paidItems())
	require.NoError(t, err)
	_, err = svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, store.orderCount())
}

func TestRecordPaidOrder_IdempotencyStoreError(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, failingIdempotency{}, 10, nil)
	defer svc.Close()

	_, err := svc.RecordPaidOrder(context.Background(), "req-1", "user-1", paidItems())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "idempotency check failed")
	assert.Empty(t, svc.GetDecrementQueue())
}

func TestRecordPaidOrder_FullQueueRespectsContext(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, nil, 1, nil)
	defer svc.Close()

	_, err := svc.RecordPaidOrder(context.Background(), "", "user-1", paidItems())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The order is stored even though the queue could not take it.
	order, err := svc.RecordPaidOrder(ctx, "", "user-1", paidItems())
	require.NoError(t, err)
	_, err = svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, svc.GetDecrementQueue(), 1)
}

func TestGetOrder_NotFound(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, nil, 1, nil)
	defer svc.Close()

	_, err := svc.GetOrder(context.Background(), "missing")

	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRecordPaidOrder_ConcurrentCheckoutDecrementsExactlyStock(t *testing.T) {
	store := newMockStore()
	require.NoError(t, store.SetStock(context.Background(), mug, 10))

	orders := NewOrderService(store, store, 100, nil)
	inventory := NewInventoryService(store)

	var decremented, soldOut atomic.Int32
	var workers sync.WaitGroup
	for i := 0; i < 3; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for id := range orders.GetDecrementQueue() {
				err := inventory.DecrementStockForOrder(context.Background(), id)
				switch {
				case err == nil:
					decremented.Add(1)
				case errors.Is(err, domain.ErrInsufficientStock):
					soldOut.Add(1)
				}
			}
		}()
	}

	var buyers sync.WaitGroup
	for i := 0; i < 20; i++ {
		buyers.Add(1)
		go func(i int) {
			defer buyers.Done()
			_, err := orders.RecordPaidOrder(context.Background(), fmt.Sprintf("req-%d", i), "user", []domain.OrderItem{
				{ProductID: "mug", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
			})
			assert.NoError(t, err)
		}(i)
	}
	buyers.Wait()

	orders.Close()
	workers.Wait()

	assert.Equal(t, int32(10), decremented.Load())
	assert.Equal(t, int32(10), soldOut.Load())
	assert.Equal(t, 0, quantity(t, store, mug))
}
