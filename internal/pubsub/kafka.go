package pubsub

import (
	"context"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"

	"modeld/internal/config"
)

// KafkaBus publishes events to Kafka, one topic per bus topic (optionally
// prefixed). Writers are created lazily per topic and reused.
type KafkaBus struct {
	brokers []string
	prefix  string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaBus(cfg config.KafkaConfig) *KafkaBus {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return &KafkaBus{
		brokers: brokers,
		prefix:  cfg.TopicPrefix,
		writers: map[string]*kafka.Writer{},
	}
}

func (b *KafkaBus) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:     kafka.TCP(b.brokers...),
			Topic:    b.prefix + topic,
			Balancer: &kafka.LeastBytes{},
		}
		b.writers[topic] = w
	}
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.writer(topic).WriteMessages(ctx, kafka.Message{Value: payload})
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.writers = map[string]*kafka.Writer{}
	return firstErr
}
