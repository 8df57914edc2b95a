package messaging

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange             = "ecommerce.events"
	PaymentConfirmedRoutingKey = "payment.confirmed.v1"
	StockDecrementedRoutingKey = "stock.decremented.v1"
	StockDepletedRoutingKey    = "stock.depleted.v1"
	serviceName                = "inventory-guard"
)

const (
	EventTypePaymentConfirmed = "PaymentConfirmed"
	EventTypeStockDecremented = "StockDecremented"
	EventTypeStockDepleted    = "StockDepleted"
)

func queueName(routingKey string) string {
	return serviceName + "." + routingKey
}

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}

type PaymentConfirmed struct {
	EventType string    `json:"eventType"`
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
}

type StockLine struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
	Decrement int    `json:"decrement,omitempty"`
}

type StockDecremented struct {
	EventID   string      `json:"eventId"`
	EventType string      `json:"eventType"`
	Producer  string      `json:"producer"`
	OrderID   string      `json:"orderId"`
	Timestamp time.Time   `json:"timestamp"`
	Lines     []StockLine `json:"lines"`
}

type StockDepleted struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Producer  string    `json:"producer"`
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
	ProductID string    `json:"productId"`
	VariantID string    `json:"variantId,omitempty"`
}
