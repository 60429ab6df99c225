package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer listens to both event queues and appends one line per message to
// an audit log file.
type Consumer struct {
	url  string
	path string
	log  logrus.FieldLogger
}

func NewConsumer(url, path string, log logrus.FieldLogger) *Consumer {
	return &Consumer{url: url, path: path, log: log.WithField("component", "audit-consumer")}
}

// Run connects to the broker and consumes until ctx is cancelled.  Dial
// failures back off exponentially up to 30s; a dropped connection is
// re-established.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", backoff).Warn("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	for _, q := range []string{BookingConfirmedQueue, SeatAvailableQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func() {
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d := <-deliveries:
			if err := c.handle(d.RoutingKey, d.Body); err != nil {
				c.log.WithError(err).WithField("queue", d.RoutingKey).Error("handle message failed")
				_ = d.Nack(false, false) // reject without requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(queue string, body []byte) error {
	line, err := formatLine(queue, body)
	if err != nil {
		return err
	}
	return appendLine(c.path, line)
}

// formatLine renders an event as a single human readable audit line.
func formatLine(queue string, body []byte) (string, error) {
	switch queue {
	case BookingConfirmedQueue:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Booking confirmed | reference=%s | flight_id=%d | seat=%s | email=%q\n",
			ev.ConfirmedAt, ev.BookingReference, ev.FlightID, ev.SeatNumber, ev.PassengerEmail), nil
	case SeatAvailableQueue:
		var ev SeatAvailableEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Seat available | flight_id=%d | seat=%s | notify_user=%s\n",
			ev.ReleasedAt, ev.FlightID, ev.SeatNumber, ev.UserID), nil
	}
	return "", fmt.Errorf("unexpected queue %q", queue)
}

func appendLine(path, line string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
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
