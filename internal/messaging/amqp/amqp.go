// Package amqp publishes and consumes through a RabbitMQ topic exchange.
// The messaging topic is used as the routing key.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sijan324/nepshop/internal/messaging"
)

type rabbit struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbit dials url and declares a durable topic exchange.
func NewRabbit(url, exchange string) (messaging.Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

func (r *rabbit) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.ch.PublishWithContext(ctx, r.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (r *rabbit) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	ch, err := r.conn.Channel()
	if err != nil {
		slog.Error("Error opening consumer channel", "topic", topic, "err", err)
		return
	}
	defer ch.Close()

	queue := groupID + "." + topic
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		slog.Error("Error declaring queue", "queue", queue, "err", err)
		return
	}
	if err := ch.QueueBind(q.Name, topic, r.exchange, false, nil); err != nil {
		slog.Error("Error binding queue", "queue", queue, "err", err)
		return
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		slog.Error("Error starting consumer", "queue", queue, "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Consumer shutting down", "topic", topic)
			return
		case d, ok := <-deliveries:
			if !ok {
				slog.Warn("Delivery channel closed", "queue", queue)
				return
			}
			if err := handler(ctx, d.Body); err != nil {
				slog.Error("Error handling message", "topic", topic, "err", err)
			}
			if err := d.Ack(false); err != nil {
				slog.Error("Error acking message", "topic", topic, "err", err)
			}
		}
	}
}

func (r *rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	return r.conn.Close()
}
