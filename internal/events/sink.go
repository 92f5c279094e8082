package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"

	"github.com/segmentio/kafka-go"
)

// Sink receives every persisted security event.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event *domain.SecurityEvent) error
}

type NoopSink struct{}

func (NoopSink) Name() string                                         { return "noop" }
func (NoopSink) Publish(context.Context, *domain.SecurityEvent) error { return nil }

// Envelope is the wire payload written to the security topic.
type Envelope struct {
	EventID      uint                     `json:"event_id"`
	EventType    domain.SecurityEventType `json:"event_type"`
	Severity     domain.Severity          `json:"severity"`
	UserID       *uint                    `json:"user_id,omitempty"`
	IPAddress    string                   `json:"ip_address,omitempty"`
	Description  string                   `json:"description"`
	Details      map[string]any           `json:"details,omitempty"`
	AutoResolved bool                     `json:"auto_resolved"`
	OccurredAt   time.Time                `json:"occurred_at"`
}

func NewEnvelope(event *domain.SecurityEvent) Envelope {
	return Envelope{
		EventID:      event.ID,
		EventType:    event.EventType,
		Severity:     event.Severity,
		UserID:       event.UserID,
		IPAddress:    event.IPAddress,
		Description:  event.Description,
		Details:      event.Details,
		AutoResolved: event.AutoResolved,
		OccurredAt:   event.CreatedAt.UTC(),
	}
}

// PartitionKey keeps all events of one user (or one address) ordered.
func PartitionKey(event *domain.SecurityEvent) string {
	if event.UserID != nil {
		return "user:" + strconv.FormatUint(uint64(*event.UserID), 10)
	}
	if event.IPAddress != "" {
		return "ip:" + event.IPAddress
	}
	return string(event.EventType)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// publishBatchTimeout caps how long a lone event waits for a batch to fill
// before it is flushed.
const publishBatchTimeout = 10 * time.Millisecond

type KafkaSink struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: publishBatchTimeout,
		},
		topic: topic,
		now:   time.Now,
	}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, event *domain.SecurityEvent) error {
	payload, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		return fmt.Errorf("encode security event: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(PartitionKey(event)),
		Value: payload,
		Time:  s.now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
