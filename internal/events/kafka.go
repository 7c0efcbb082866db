package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer we use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON, keyed by group id so every message of a
// group lands on the same partition in send order.
type Kafka struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

var _ Publisher = (*Kafka)(nil)

// NewKafka creates an asynchronous producer for topic. Write failures
// surface in the log through the writer's completion callback.
func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("kafka write failed",
					slog.String("topic", topic),
					slog.Int("messages", len(msgs)),
					slog.String("error", err.Error()),
				)
			}
		},
	}
	return &Kafka{writer: w, topic: topic, logger: logger}
}

func (k *Kafka) PublishMessage(ctx context.Context, ev MessageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encoding %s: %w", ev.Type, err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.GroupID.String()),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: publishing to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
