package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

var (
	keyMug    = domain.StockKey{ProductID: "mug"}
	keyShirtM = domain.StockKey{ProductID: "shirt", VariantID: "m"}
)

func memOrder(id string, items ...domain.OrderItem) domain.Order {
	for i := range items {
		items[i].OrderID = id
	}
	return domain.Order{ID: id, UserID: "user-1", Status: domain.OrderStatusPaid, Items: items}
}

func TestMemoryAdapter_SetAndGetRecord(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	rec, err := m.GetRecord(ctx, keyMug)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, m.SetStock(ctx, keyMug, 4))
	require.NoError(t, m.SetStock(ctx, keyShirtM, 2))

	rec, err = m.GetRecord(ctx, keyMug)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 4, rec.Quantity)
	assert.Equal(t, keyMug, rec.Key())

	// The variant record and the product-level record are distinct.
	rec, err = m.GetRecord(ctx, domain.StockKey{ProductID: "shirt"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.ErrorIs(t, m.SetStock(ctx, keyMug, -1), domain.ErrInvalidQuantity)
}

func TestMemoryAdapter_DecrementForOrder(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, m.SetStock(ctx, keyMug, 3))
	require.NoError(t, m.SetStock(ctx, keyShirtM, 10))
	require.NoError(t, m.CreateOrder(ctx, memOrder("o-1",
		domain.OrderItem{ProductID: "shirt", VariantID: "m", Quantity: 4},
		domain.OrderItem{ProductID: "mug", Quantity: 3},
	)))

	res, err := m.DecrementForOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, []domain.StockLevel{
		{Key: keyMug, Quantity: 0, Decrement: 3},
		{Key: keyShirtM, Quantity: 6, Decrement: 4},
	}, res.Levels)

	order, err := m.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, order.StockDecremented())

	res, err = m.DecrementForOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, res.Levels)

	rec, _ := m.GetRecord(ctx, keyShirtM)
	assert.Equal(t, 6, rec.Quantity)
}

func TestMemoryAdapter_DecrementForOrderIsAllOrNothing(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, m.SetStock(ctx, keyMug, 1))
	require.NoError(t, m.SetStock(ctx, keyShirtM, 10))
	require.NoError(t, m.CreateOrder(ctx, memOrder("o-1",
		domain.OrderItem{ProductID: "shirt", VariantID: "m", Quantity: 4},
		domain.OrderItem{ProductID: "mug", Quantity: 2},
	)))

	_, err := m.DecrementForOrder(ctx, "o-1")

	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, keyMug, stockErr.Key)
	assert.Equal(t, 2, stockErr.Requested)

	rec, _ := m.GetRecord(ctx, keyShirtM)
	assert.Equal(t, 10, rec.Quantity)
	order, _ := m.GetOrder(ctx, "o-1")
	assert.False(t, order.StockDecremented())
}

func TestMemoryAdapter_DecrementForUnknownOrder(t *testing.T) {
	m := NewMemoryAdapter()

	_, err := m.DecrementForOrder(context.Background(), "nope")

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryAdapter_ConcurrentDecrements(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, m.SetStock(ctx, keyMug, 25))

	const orders = 60
	for i := 0; i < orders; i++ {
		require.NoError(t, m.CreateOrder(ctx, memOrder(orderID(i), domain.OrderItem{ProductID: "mug", Quantity: 1})))
	}

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if res, err := m.DecrementForOrder(ctx, orderID(i)); err == nil && res.Applied {
				applied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(25), applied.Load())
	rec, _ := m.GetRecord(ctx, keyMug)
	assert.Equal(t, 0, rec.Quantity)
}

func TestMemoryAdapter_OrdersAreCopied(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	order := memOrder("o-1", domain.OrderItem{ProductID: "mug", Quantity: 1})
	require.NoError(t, m.CreateOrder(ctx, order))

	order.Items[0].Quantity = 99
	got, err := m.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Items[0].Quantity)

	assert.Error(t, m.CreateOrder(ctx, memOrder("o-1")))

	missing, err := m.GetOrder(ctx, "o-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryAdapter_SetIdempotency(t *testing.T) {
	m := NewMemoryAdapter()
	now := time.Date(2024, 11, 29, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := m.SetIdempotency(ctx, "order:user-1:req-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetIdempotency(ctx, "order:user-1:req-1")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(idempotencyKeyTTL)
	ok, err = m.SetIdempotency(ctx, "order:user-1:req-1")
	require.NoError(t, err)
	assert.True(t, ok, "key expires after its TTL")
}

func TestMemoryAdapter_ReleaseIdempotency(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	ok, err := m.SetIdempotency(ctx, "order:user-1:req-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.ReleaseIdempotency(ctx, "order:user-1:req-1"))

	ok, err = m.SetIdempotency(ctx, "order:user-1:req-1")
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")

	assert.NoError(t, m.ReleaseIdempotency(ctx, "never-set"))
}

func TestMemoryAdapter_SweepsExpiredIdempotencyKeys(t *testing.T) {
	m := NewMemoryAdapter()
	now := time.Date(2024, 11, 29, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := m.SetIdempotency(ctx, fmt.Sprintf("order:user-1:req-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 50, m.IdempotencyKeys())

	now = now.Add(idempotencyKeyTTL + time.Minute)
	_, err := m.SetIdempotency(ctx, "order:user-2:req-1")
	require.NoError(t, err)

	assert.Equal(t, 1, m.IdempotencyKeys())
}

func TestMemoryAdapter_Reset(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, m.SetStock(ctx, keyMug, 1))
	require.NoError(t, m.CreateOrder(ctx, memOrder("o-1")))

	m.Reset()

	rec, _ := m.GetRecord(ctx, keyMug)
	assert.Nil(t, rec)
	order, _ := m.GetOrder(ctx, "o-1")
	assert.Nil(t, order)
}

func TestMemoryAdapter_HonoursContext(t *testing.T) {
	m := NewMemoryAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.GetRecord(ctx, keyMug)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.DecrementForOrder(ctx, "o-1")
	var txErr *domain.TransactionError
	assert.ErrorAs(t, err, &txErr)
}

func orderID(i int) string {
	return fmt.Sprintf("order-%d", i)
}
