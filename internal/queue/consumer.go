package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/realty-crm/internal/config"
	"github.com/iliyamo/realty-crm/internal/service"
)

// StartNotificationConsumer consumes the reset queue and appends each event
// to cfg.NotificationLog.  It reconnects with backoff until ctx is done and
// then returns ctx.Err().  Messages that fail to process are rejected
// without requeue so the loop keeps moving.
func StartNotificationConsumer(ctx context.Context, cfg config.AMQPConfig, log *slog.Logger) error {
	log = log.With(slog.String("component", "notification-consumer"), slog.String("queue", cfg.ResetQueue))
	sink := &fileSink{path: cfg.NotificationLog}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn("dial broker failed", slog.Any("err", err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg.ResetQueue, sink, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", slog.Any("err", err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, sink *fileSink, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", slog.Any("err", err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := sink.handleMessage(d.Body); err != nil {
				log.Error("handle message failed", slog.Any("err", err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// fileSink appends notification lines to a log file.
type fileSink struct {
	mu   sync.Mutex
	path string
}

func (s *fileSink) handleMessage(body []byte) error {
	var ev PasswordResetRequestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.Token == "" {
		return errors.New("event is missing email or token")
	}
	return s.append(formatResetLine(ev))
}

func (s *fileSink) append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatResetLine(ev PasswordResetRequestedEvent) string {
	return fmt.Sprintf("[%s] Password reset requested | user_id=%d | email=%q | name=%q | token=%s | expires_at=%s\n",
		ev.RequestedAt, ev.UserID, ev.Email, ev.Name, ev.Token, ev.ExpiresAt)
}

// Outbox writes reset notices straight to the notification log.  It is the
// service.Notifier used when the broker is disabled.
type Outbox struct {
	sink *fileSink
}

func NewOutbox(path string) *Outbox {
	return &Outbox{sink: &fileSink{path: path}}
}

func (o *Outbox) PasswordResetRequested(_ context.Context, n service.ResetNotice) error {
	if err := o.sink.append(formatResetLine(newResetEvent(n, time.Now()))); err != nil {
		return fmt.Errorf("queue.Outbox.PasswordResetRequested: %w", err)
	}
	return nil
}
