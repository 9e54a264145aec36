package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"librarium/pkg/domain"
)

// AMQPNotifier publishes notification events to a RabbitMQ queue
// consumed by the mailer.
type AMQPNotifier struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

type amqpEvent struct {
	Contact  string            `json:"contact"`
	Template string            `json:"template"`
	Fields   map[string]string `json:"fields"`
	SentAt   time.Time         `json:"sentAt"`
}

// NewAMQPNotifier connects to the broker and declares the queue.
func NewAMQPNotifier(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, queue: queue}, nil
}

// Publish sends one event to the queue as a persistent JSON message.
func (n *AMQPNotifier) Publish(ctx context.Context, contact string, kind domain.TemplateKind, fields map[string]string) error {
	body, err := json.Marshal(amqpEvent{
		Contact:  contact,
		Template: string(kind),
		Fields:   fields,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.queue, err)
	}
	return nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}
