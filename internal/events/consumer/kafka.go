// Package consumer reads account events back from Kafka and forwards them to a sink.
package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/events"
	"passwordless-auth/backend/internal/platform/logger"
)

const sinkTimeout = 10 * time.Second

// messageReader is the subset of *kafka.Reader used by Consumer.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer forwards every event on a topic to sink. Malformed messages are logged and skipped.
type Consumer struct {
	reader messageReader
	sink   events.Emitter
	log    *zap.Logger
}

// NewKafkaConsumer joins groupID on topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, sink events.Emitter, log *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, sink, log)
}

func newConsumer(reader messageReader, sink events.Emitter, log *zap.Logger) *Consumer {
	return &Consumer{reader: reader, sink: sink, log: logger.OrNop(log).Named("events.consumer")}
}

// Run consumes until ctx is cancelled, then returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("kafka read failed", zap.Error(err))
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var ev events.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.Type == "" {
		c.log.Warn("skipping malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := c.sink.Emit(sinkCtx, &ev); err != nil {
		c.log.Warn("event sink failed", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
