// Package audit records conversation history. Sinks are fire-and-forget
// from the caller's point of view: failures are logged and never stop a turn.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

// Sink receives message log entries.
type Sink interface {
	Record(ctx context.Context, e models.MessageLogEntry) error
}

// MessageLogger is the store capability used by StoreSink.
type MessageLogger interface {
	LogMessage(ctx context.Context, e models.MessageLogEntry) error
}

// StoreSink appends entries to the message_log table.
type StoreSink struct {
	store MessageLogger
}

// NewStoreSink wraps a message log repository.
func NewStoreSink(store MessageLogger) *StoreSink {
	return &StoreSink{store: store}
}

// Record implements Sink.
func (s *StoreSink) Record(ctx context.Context, e models.MessageLogEntry) error {
	return s.store.LogMessage(ctx, e)
}

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries as JSON, keyed by tenant and user so one
// conversation stays on one partition.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

// NewKafkaSink creates a sink writing to topic on the given brokers
// (comma separated).
func NewKafkaSink(brokers, topic string) *KafkaSink {
	list := strings.Split(brokers, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(list...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: w, topic: topic}
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

// Record implements Sink.
func (k *KafkaSink) Record(ctx context.Context, e models.MessageLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal message log entry: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.TenantID + ":" + e.UserID),
		Value: value,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "direction", Value: []byte(e.Direction)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("KafkaSink write failed", "error", err, "topic", k.topic, "tenantID", e.TenantID)
		return fmt.Errorf("failed to publish message log entry: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// MultiSink fans an entry out to every sink. All sinks are attempted.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, e models.MessageLogEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
