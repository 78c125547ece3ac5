package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
)

// OrderEvent is the message shape pushed onto the order-lifecycle queue for
// downstream consumers (analytics, CRM sync).
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher writes order lifecycle events to a durable RabbitMQ queue. A nil
// Publisher is valid and drops everything, so the broker stays optional in
// local setups.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher: amqp.Dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewPublisher: conn.Channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("NewPublisher: ch.QueueDeclare: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish is fire-and-forget: a broker outage must never fail an order.
func (p *Publisher) Publish(event OrderEvent) {
	if p == nil {
		return
	}

	event.Timestamp = time.Now().UTC()
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal order event", "type", event.Type, "error", err)
		return
	}

	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		slog.Error("failed to publish order event", "type", event.Type, "order", event.OrderNumber, "error", err)
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
