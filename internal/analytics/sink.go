// Package analytics publishes product analytics events about step
// decisions. Delivery is best effort: callers log failures and move on.
package analytics

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

// Sink receives analytics events.
type Sink interface {
	Track(ctx context.Context, event, userID string, properties map[string]any) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Track(context.Context, string, string, map[string]any) error { return nil }

// Event is the JSON envelope written to Kafka.
type Event struct {
	Event      string         `json:"event"`
	UserID     string         `json:"userId"`
	Properties map[string]any `json:"properties"`
	Timestamp  time.Time      `json:"timestamp"`
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes one message per event, keyed by user id so a user's
// events stay on one partition.
type KafkaSink struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaWriter builds a synchronous writer for a comma-separated broker list.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

func NewKafkaSink(w *kafka.Writer) *KafkaSink {
	return newKafkaSink(w)
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w, now: time.Now}
}

func (s *KafkaSink) Track(ctx context.Context, event, userID string, properties map[string]any) error {
	now := s.now().UTC()
	payload, err := json.Marshal(Event{
		Event:      event,
		UserID:     userID,
		Properties: properties,
		Timestamp:  now,
	})
	if err != nil {
		return errors.Wrapf(err, "encode analytics event %q", event)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(userID),
		Value: payload,
		Time:  now,
	})
	if err != nil {
		return errors.Wrapf(err, "write analytics event %q", event)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

var (
	_ Sink = NopSink{}
	_ Sink = (*KafkaSink)(nil)
)
