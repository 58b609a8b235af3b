package consumer

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/alverniaplanet/website/internal/config"
)

// MessageProcessor interface for processing messages
type MessageProcessor interface {
	Process(ctx context.Context, event map[string]interface{}) error
	Flush()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer consumes classified clicks from Kafka
type KafkaConsumer struct {
	reader    messageReader
	topic     string
	group     string
	processor MessageProcessor
}

// NewKafkaConsumer creates a new Kafka consumer on the clicks topic
func NewKafkaConsumer(cfg config.KafkaConfig, processor MessageProcessor) (*KafkaConsumer, error) {
	topic := cfg.Topics["clicks"]
	if topic == "" {
		topic = "site.clicks"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 1000,
		StartOffset:    kafka.LastOffset,
	})

	return &KafkaConsumer{
		reader:    reader,
		topic:     topic,
		group:     cfg.ConsumerGroup,
		processor: processor,
	}, nil
}

// Start consumes until ctx is cancelled
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().
		Str("topic", c.topic).
		Str("group", c.group).
		Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Kafka consumer stopped")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to fetch message")
				continue
			}
			c.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes and commits one message. Unparseable and
// rejected messages are committed too, so one bad click cannot stall the
// partition.
func (c *KafkaConsumer) handleMessage(ctx context.Context, msg kafka.Message) {
	var event map[string]interface{}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().
			Err(err).
			Str("value", string(msg.Value)).
			Msg("Failed to parse message")
	} else if err := c.processor.Process(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("key", string(msg.Key)).
			Msg("Failed to process click")
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error().Err(err).Msg("Failed to commit message")
	}
}

// Close flushes the processor and closes the reader
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	c.processor.Flush()
	return c.reader.Close()
}
