package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

var _ port.Publisher = (*Producer)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes match events as JSON, keyed by the order owner so one
// owner's events stay in one partition.
type Producer struct {
	writer messageWriter
}

// NewProducer returns an asynchronous producer: Publish only queues the
// message, and delivery failures are logged by the completion hook.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			Completion:   logCompletion(log),
		},
	}
}

func logCompletion(log *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		log.Warn("kafka_delivery_failed", zap.Int("messages", len(msgs)), zap.Error(err))
	}
}

func (p *Producer) Publish(ctx context.Context, ev *domain.MatchEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Owner),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
