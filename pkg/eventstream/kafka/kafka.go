// Package kafka publishes memory events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/strata/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "strata.memory.events"

// Config holds Kafka publisher settings.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds each publish. Defaults to 5s.
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes events keyed by memory key, so every event for one key
// lands on the same partition in order.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(c Config, logger *slog.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka event publisher initialized",
		"brokers", c.Brokers,
		"topic", c.Topic,
	)

	return newPublisher(w, c.WriteTimeout, logger), nil
}

func newPublisher(w messageWriter, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{writer: w, timeout: timeout, logger: logger}
}

// Publish encodes event as JSON and writes it synchronously.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.Item.Key),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing %s for %s: %w", event.EventType, event.Item.Key, err)
	}

	p.logger.Debug("published event",
		"event_type", event.EventType,
		"key", event.Item.Key,
		"version", event.Item.Version,
	)

	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
