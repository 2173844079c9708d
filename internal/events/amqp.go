package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "briefflow.events"

// AMQPPublisher publishes events as persistent JSON messages to a topic
// exchange, routed by event type.
type AMQPPublisher struct {
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{exchange: exchange, conn: conn, ch: ch}, nil
}

// Publish sends e with its type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := publishing(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("publisher closed")
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, e.Type, err)
	}
	return nil
}

// Close closes the channel and the connection. It is safe to call twice.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.ch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := p.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	return errors.Join(errs...)
}

func publishing(e Event) (amqp.Publishing, error) {
	body, err := encode(e)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.Timestamp,
		Type:         string(e.Type),
		Body:         body,
	}, nil
}
