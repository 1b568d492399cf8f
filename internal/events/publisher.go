// Package events publishes booking lifecycle events for downstream
// consumers such as the notification service.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/model"
)

// Event types.
const (
	BookingCreated   = "booking.created"
	BookingCancelled = "booking.cancelled"
	BookingConfirmed = "booking.confirmed"
)

// Publisher sends a keyed message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, value []byte) error
	Close() error
}

// BookingEvent is the payload written for every booking state change.
type BookingEvent struct {
	Type          string              `json:"type"`
	BookingID     uuid.UUID           `json:"booking_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	ServiceKind   model.ServiceKind   `json:"service_kind"`
	ServiceID     uuid.UUID           `json:"service_id"`
	Status        model.BookingStatus `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Seats         []string            `json:"seats,omitempty"`
	RefundID      *uuid.UUID          `json:"refund_id,omitempty"`
	TicketNo      string              `json:"ticket_no,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// NewBookingEvent fills the common fields from a booking.
func NewBookingEvent(eventType string, b *model.Booking) BookingEvent {
	return BookingEvent{
		Type:          eventType,
		BookingID:     b.ID,
		CustomerID:    b.CustomerID,
		ServiceKind:   b.ServiceKind,
		ServiceID:     b.ServiceID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		TotalAmount:   b.TotalAmount,
		OccurredAt:    time.Now().UTC(),
	}
}

// ─── Kafka producer ─────────────────────────────────────────

// SaramaPublisher is a synchronous Kafka producer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
}

// NewSaramaPublisher connects a sync producer that waits for all in-sync
// replicas to acknowledge each message.
func NewSaramaPublisher(brokers []string, clientID string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewSaramaPublisherFromProducer(p), nil
}

// NewSaramaPublisherFromProducer wraps an existing producer.
func NewSaramaPublisherFromProducer(p sarama.SyncProducer) *SaramaPublisher {
	return &SaramaPublisher{producer: p}
}

func (p *SaramaPublisher) Publish(ctx context.Context, topic string, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every message. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, []byte) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

// ─── Emitter ────────────────────────────────────────────────

// Emitter serializes booking events and publishes them after commit.
// Failures are logged and never reach the caller: the booking is already
// durable when an event is emitted.
type Emitter struct {
	pub    Publisher
	topic  string
	logger *logrus.Entry
}

// NewEmitter creates an emitter writing to topic.
func NewEmitter(pub Publisher, topic string, logger *logrus.Logger) *Emitter {
	return &Emitter{
		pub:    pub,
		topic:  topic,
		logger: logger.WithField("component", "events"),
	}
}

// Emit publishes ev keyed by booking id so all events of one booking land
// on the same partition in order. A nil Emitter is a no-op.
func (e *Emitter) Emit(ctx context.Context, ev BookingEvent) {
	if e == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.WithError(err).WithField("type", ev.Type).Error("marshal event")
		return
	}
	if err := e.pub.Publish(ctx, e.topic, ev.BookingID.String(), payload); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"type":       ev.Type,
			"booking_id": ev.BookingID,
		}).Warn("publish event failed")
	}
}
