package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriterFunc adapts a function to the writer the publisher uses.
type MessageWriterFunc func(ctx context.Context, msgs ...kafkago.Message) error

func (f MessageWriterFunc) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	return f(ctx, msgs...)
}

func (MessageWriterFunc) Close() error { return nil }

// NewPublisherWithWriter exposes the writer seam to tests.
func NewPublisherWithWriter(w MessageWriterFunc, timeout time.Duration, logger *slog.Logger) *Publisher {
	return newPublisher(w, timeout, logger)
}
