package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
	"github.com/cartel-codes/theme-nv-sub002/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

// OrderService records paid orders and queues them for stock decrement.
type OrderService struct {
	orders         port.OrderRepository
	idempotency    port.IdempotencyStore
	decrementQueue chan string
	logger         *zap.Logger
	now            func() time.Time

	// mu guards decrementQueue against Close while a send is in flight.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func NewOrderService(orders port.OrderRepository, idempotency port.IdempotencyStore, queueSize int, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orders:         orders,
		idempotency:    idempotency,
		decrementQueue: make(chan string, queueSize),
		logger:         logger,
		now:            time.Now,
		done:           make(chan struct{}),
	}
}

// RecordPaidOrder persists an order whose payment succeeded and enqueues it for
// stock decrement. A non-empty requestID makes the call idempotent per user.
func (s *OrderService) RecordPaidOrder(ctx context.Context, requestID, userID string, items []domain.OrderItem) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: userId is required", domain.ErrInvalidLine)
	}
	if len(items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order has no items", domain.ErrInvalidLine)
	}
	for _, it := range items {
		line := domain.LineRequest{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity}
		if err := line.Validate(); err != nil {
			return domain.Order{}, err
		}
		if it.UnitPrice.IsNegative() {
			return domain.Order{}, fmt.Errorf("%w: unit price for %s is negative", domain.ErrInvalidLine, line.Key())
		}
	}

	var idempotencyKey string
	if requestID != "" && s.idempotency != nil {
		idempotencyKey = fmt.Sprintf("order:%s:%s", userID, requestID)
		ok, err := s.idempotency.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Order{}, ErrDuplicateRequest
		}
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.OrderStatusPaid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range items {
		it.ID = uuid.NewString()
		it.OrderID = order.ID
		order.Items = append(order.Items, it)
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if idempotencyKey != "" {
			// Nothing was stored, so the caller must be able to retry with the same key.
			if relErr := s.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey); relErr != nil {
				s.logger.Error("release idempotency key",
					zap.String("key", idempotencyKey),
					zap.Error(relErr),
				)
			}
		}
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("paid order recorded",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(order.Items)),
	)

	s.enqueue(ctx, order.ID)
	return order, nil
}

// enqueue hands the order to the decrement workers. An order that cannot be
// queued is still stored; its decrement can be triggered explicitly.
func (s *OrderService) enqueue(ctx context.Context, orderID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("decrement not queued, service closed", zap.String("order_id", orderID))
		return
	}

	select {
	case s.decrementQueue <- orderID:
	case <-ctx.Done():
		s.logger.Warn("decrement not queued", zap.String("order_id", orderID), zap.Error(ctx.Err()))
	case <-s.done:
		s.logger.Warn("decrement not queued, service closed", zap.String("order_id", orderID))
	}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if order == nil {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	return *order, nil
}

func (s *OrderService) GetDecrementQueue() <-chan string {
	return s.decrementQueue
}

// Close stops accepting decrements and closes the queue once no send is in
// flight. Senders blocked on a full queue give up. Safe to call more than once.
func (s *OrderService) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		close(s.decrementQueue)
	})
}
