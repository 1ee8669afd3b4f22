package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ticket events to Kafka as JSON, keyed by ticket id.
type Producer struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewProducer creates a producer for the ticket topic.
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TicketTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}, logger)
}

func newProducer(w messageWriter, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: w, timeout: 5 * time.Second, logger: logger}
}

// Register subscribes the producer to every ticket event.
func (p *Producer) Register(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(p.SendEvent)
}

// SendEvent writes one event. Events of the same ticket share a key and
// therefore a partition, which keeps them ordered.
func (p *Producer) SendEvent(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	key := event.TicketID
	if key == "" {
		key = event.ChannelID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", event.ID, err)
	}

	p.logger.Debug("sent event to kafka", zap.String("event_type", string(event.Type)), zap.String("key", key))
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
