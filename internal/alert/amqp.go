package alert

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Broker publishes alerts as persistent JSON messages.
type Broker struct {
	ch         Channel
	exchange   string
	routingKey string
	closeFn    func() error
}

// NewBroker wraps an existing channel. exchange may be empty for the default exchange.
func NewBroker(ch Channel, exchange, routingKey string) *Broker {
	return &Broker{ch: ch, exchange: exchange, routingKey: routingKey}
}

// DialBroker connects to url, opens a channel and declares exchange as a
// durable topic exchange when it is not the default one.
func DialBroker(url, exchange, routingKey string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
		}
	}

	b := NewBroker(ch, exchange, routingKey)
	b.closeFn = conn.Close
	return b, nil
}

func (b *Broker) Emit(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    a.Time,
		Type:         string(a.Kind),
		MessageId:    a.TransactionID,
		Body:         body,
	}
	if err := b.ch.PublishWithContext(ctx, b.exchange, b.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}

// Close closes the connection opened by DialBroker. It is a no-op for
// brokers built with NewBroker.
func (b *Broker) Close() error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}
