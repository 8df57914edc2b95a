package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	ch       Channel
	producer string
	now      func() time.Time
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	return newPublisher(ch), nil
}

func newPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch, producer: serviceName, now: time.Now}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishStockDecremented(ctx context.Context, orderID string, levels []domain.StockLevel) error {
	ev := StockDecremented{
		EventID:   uuid.NewString(),
		EventType: EventTypeStockDecremented,
		Producer:  p.producer,
		OrderID:   orderID,
		Timestamp: p.now().UTC(),
	}
	for _, lvl := range levels {
		ev.Lines = append(ev.Lines, StockLine{
			ProductID: lvl.Key.ProductID,
			VariantID: lvl.Key.VariantID,
			Quantity:  lvl.Quantity,
			Decrement: lvl.Decrement,
		})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal StockDecremented: %w", err)
	}
	return p.publishJSON(ctx, StockDecrementedRoutingKey, ev.EventID, orderID, body)
}

func (p *Publisher) PublishStockDepleted(ctx context.Context, orderID string, level domain.StockLevel) error {
	ev := StockDepleted{
		EventID:   uuid.NewString(),
		EventType: EventTypeStockDepleted,
		Producer:  p.producer,
		OrderID:   orderID,
		Timestamp: p.now().UTC(),
		ProductID: level.Key.ProductID,
		VariantID: level.Key.VariantID,
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal StockDepleted: %w", err)
	}
	return p.publishJSON(ctx, StockDepletedRoutingKey, ev.EventID, orderID, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID, correlationID string, body []byte) error {
	err := p.ch.PublishWithContext(ctx, EventsExchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     messageID,
		CorrelationId: correlationID,
		Timestamp:     p.now().UTC(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}
