package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/enricher"
)

// TopicClicks names the topic classified clicks are written to.
const TopicClicks = "clicks"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writers map[string]messageWriter
	topics  map[string]string
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	writers := make(map[string]messageWriter)

	for name, topic := range cfg.Topics {
		writers[name] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		}
	}

	return &KafkaProducer{
		writers: writers,
		topics:  cfg.Topics,
	}, nil
}

// ProduceClick writes one classified click keyed by session, so a session's
// clicks stay ordered within a partition.
func (p *KafkaProducer) ProduceClick(ctx context.Context, key string, event *enricher.ClassifiedEvent) error {
	w, ok := p.writers[TopicClicks]
	if !ok {
		return fmt.Errorf("kafka: topic %q not configured", TopicClicks)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error {
	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
