// Package events publishes call lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	TypeCallPlaced = "call.placed"
	TypeCallFailed = "call.failed"
	TypeCallResult = "call.result"
)

// CallEvent is one entry on the call events topic, keyed by user id.
type CallEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	CallSID     string    `json:"call_sid,omitempty"`
	Error       string    `json:"error,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewCallEvent stamps a fresh id and time on an event of the given type.
func NewCallEvent(eventType, userID string) CallEvent {
	return CallEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Publish failures are reported to the caller and
// never affect the call itself.
type Publisher interface {
	Publish(ctx context.Context, e CallEvent) error
	Close() error
}

// ─── NOOP ─────────────────────────────────────────────────────────────────────

// Noop discards every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, CallEvent) error { return nil }
func (Noop) Close() error                             { return nil }

// ─── KAFKA ────────────────────────────────────────────────────────────────────

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a single topic.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes e keyed by user id so one user's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, e CallEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", e.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(e.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
