package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kirinyoku/openmic/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the durable topic exchange claim events go to when
// none is configured.
const DefaultExchange = "openmic.claims"

// RoutingKey is the topic key for a transition, e.g. "claim.offered".
func RoutingKey(ev domain.ClaimEvent) string {
	return "claim." + string(ev.To)
}

// RabbitMQ publishes claim events as persistent JSON messages. The
// connection is opened lazily and reopened after a failure.
type RabbitMQ struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitMQ(url, exchange string) *RabbitMQ {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &RabbitMQ{url: url, exchange: exchange}
}

func (r *RabbitMQ) channel() (*amqp.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	r.closeLocked()

	conn, err := amqp.Dial(r.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if err := ch.ExchangeDeclare(
		r.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}

	r.conn, r.ch = conn, ch

	return ch, nil
}

func (r *RabbitMQ) Notify(ctx context.Context, ev domain.ClaimEvent) error {
	const op = "notify.RabbitMQ.Notify"

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, err := r.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := ch.PublishWithContext(ctx,
		r.exchange,
		RoutingKey(ev),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    ev.ClaimID.String() + ":" + string(ev.To),
			Body:         body,
		},
	); err != nil {
		r.closeLocked()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *RabbitMQ) closeLocked() {
	if r.ch != nil {
		_ = r.ch.Close()
		r.ch = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()

	return nil
}
