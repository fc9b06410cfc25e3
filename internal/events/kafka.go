package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/metrics"
)

// KafkaPublisher hands envelopes to a background writer through a bounded
// inbox. A full inbox drops the event and logs it.
type KafkaPublisher struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	done    chan struct{}
	logger  *zap.Logger
	closeMu sync.Once
}

func NewKafkaPublisher(brokers []string, topic string, buf int, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start runs the writer loop until Close is called; pending messages are
// flushed before the writer closes.
func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			p.write(m)
		}
		if err := p.w.Close(); err != nil {
			p.logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}()
}

func (p *KafkaPublisher) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.w.WriteMessages(ctx, m); err != nil {
		metrics.EventsPublished.WithLabelValues("failed").Inc()
		p.logger.Error("publish event failed",
			zap.ByteString("key", m.Key),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}

func (p *KafkaPublisher) Publish(_ context.Context, env Envelope) {
	value, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("marshal event failed", zap.String("event_type", env.EventType), zap.Error(err))
		return
	}

	// Keyed by order id so one order's events stay on one partition, in order.
	msg := kafka.Message{
		Key:   []byte(env.CorrelationID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}

	// Events follow a commit; a cancelled request context does not drop them.
	select {
	case p.inbox <- msg:
	default:
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		p.logger.Warn("event inbox full, dropping event",
			zap.String("event_type", env.EventType),
			zap.String("correlation_id", env.CorrelationID))
	}
}

// Close stops accepting events and waits for the inbox to drain.
func (p *KafkaPublisher) Close() {
	p.closeMu.Do(func() { close(p.inbox) })
	<-p.done
}
