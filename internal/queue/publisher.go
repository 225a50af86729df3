package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/realty-crm/internal/config"
	"github.com/iliyamo/realty-crm/internal/service"
)

// Publisher sends password reset events to RabbitMQ.  It implements
// service.Notifier.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger
}

func NewPublisher(cfg config.AMQPConfig, log *slog.Logger) *Publisher {
	return &Publisher{url: cfg.URL, queue: cfg.ResetQueue, log: log}
}

// PasswordResetRequested publishes n to the reset queue as a persistent
// message.  Errors are logged and returned; callers treat them as
// non-fatal.
func (p *Publisher) PasswordResetRequested(ctx context.Context, n service.ResetNotice) error {
	const op = "queue.Publisher.PasswordResetRequested"

	body, err := json.Marshal(newResetEvent(n, time.Now()))
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}
	if err := p.publish(ctx, body); err != nil {
		p.log.Error("publish failed", slog.String("op", op), slog.String("queue", p.queue), slog.Any("err", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
