package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// Publisher publishes domain events to RabbitMQ.  Each event opens its own
// connection so a broker outage never poisons a long-lived channel; events
// are rare compared to hold traffic.  Errors are logged and returned.
type Publisher struct {
	url  string
	log  logrus.FieldLogger
	now  func() time.Time
	send func(ctx context.Context, queue string, body []byte) error
}

func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	p := &Publisher{url: url, log: log.WithField("component", "publisher"), now: time.Now}
	p.send = p.publishAMQP
	return p
}

// BookingConfirmed publishes to booking.confirmed.
func (p *Publisher) BookingConfirmed(ctx context.Context, b model.Booking) error {
	return p.publish(ctx, BookingConfirmedQueue, newBookingConfirmedEvent(b))
}

// SeatAvailable publishes to seat.available.
func (p *Publisher) SeatAvailable(ctx context.Context, flightID uint64, seatNumber, userID string) error {
	return p.publish(ctx, SeatAvailableQueue, SeatAvailableEvent{
		FlightID:   flightID,
		SeatNumber: seatNumber,
		UserID:     userID,
		ReleasedAt: p.now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", queue, err)
	}
	if err := p.send(ctx, queue, body); err != nil {
		p.log.WithError(err).WithField("queue", queue).Error("publish failed")
		return err
	}
	return nil
}

func (p *Publisher) publishAMQP(ctx context.Context, queue string, body []byte) error {
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
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// LogNotifier stands in for the publisher when no broker is configured; it
// only logs the events.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) BookingConfirmed(_ context.Context, b model.Booking) error {
	n.Log.WithFields(logrus.Fields{"reference": b.Reference, "flight_id": b.FlightID, "seat": b.SeatNumber}).
		Info("event booking.confirmed")
	return nil
}

func (n LogNotifier) SeatAvailable(_ context.Context, flightID uint64, seatNumber, userID string) error {
	n.Log.WithFields(logrus.Fields{"flight_id": flightID, "seat": seatNumber, "user_id": userID}).
		Info("event seat.available")
	return nil
}
