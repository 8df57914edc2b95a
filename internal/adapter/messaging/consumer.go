package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

// HandlerFunc processes one message body. A nil error acks the delivery.
type HandlerFunc func(ctx context.Context, body []byte) error

type Decrementer interface {
	DecrementStockForOrder(ctx context.Context, orderID string) error
}

var errMalformedMessage = errors.New("malformed message")

// PaymentConfirmedHandler decrements stock for the order named in a
// payment-confirmed event.
func PaymentConfirmedHandler(svc Decrementer, logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev PaymentConfirmed
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: %v", errMalformedMessage, err)
		}
		if ev.OrderID == "" {
			return fmt.Errorf("%w: missing orderId", errMalformedMessage)
		}

		if err := svc.DecrementStockForOrder(ctx, ev.OrderID); err != nil {
			return fmt.Errorf("decrement stock for order %s: %w", ev.OrderID, err)
		}

		logger.Debug("payment confirmation processed", zap.String("order_id", ev.OrderID))
		return nil
	}
}

// shouldRequeue reports whether a failed delivery may succeed if redelivered.
// Only aborted transactions qualify; missing orders, missing records and
// insufficient stock will fail the same way again.
func shouldRequeue(err error) bool {
	var txErr *domain.TransactionError
	return errors.As(err, &txErr)
}

// StartPaymentConfirmedConsumer binds the service queue to payment
// confirmations and runs handler for each delivery until ctx is done. The
// returned function closes the channel.
func StartPaymentConfirmedConsumer(ctx context.Context, conn *amqp.Connection, handler HandlerFunc, logger *zap.Logger) (func() error, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	queue := queueName(PaymentConfirmedRoutingKey)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(queue, PaymentConfirmedRoutingKey, EventsExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(queue, serviceName, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("stopping consumer", zap.String("queue", queue))
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("deliveries channel closed", zap.String("queue", queue))
					return
				}
				handleDelivery(ctx, msg, handler, logger)
			}
		}
	}()

	return ch.Close, nil
}

func handleDelivery(ctx context.Context, msg amqp.Delivery, handler HandlerFunc, logger *zap.Logger) {
	if err := handler(ctx, msg.Body); err != nil {
		requeue := shouldRequeue(err) && !msg.Redelivered
		logger.Error("handle message",
			zap.String("message_id", msg.MessageId),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		_ = msg.Nack(false, requeue)
		return
	}
	_ = msg.Ack(false)
}
