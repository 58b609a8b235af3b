package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/consumer"
	"github.com/alverniaplanet/website/internal/insights"
	"github.com/alverniaplanet/website/internal/processor"
	"github.com/alverniaplanet/website/internal/session"
	"github.com/alverniaplanet/website/internal/storage"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/processor.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Str("clickhouse_addr", cfg.ClickHouse.Addr).
		Str("redis_addr", cfg.Redis.Addr).
		Int("batch_size", cfg.Batch.Size).
		Dur("flush_interval", cfg.Batch.FlushInterval).
		Msg("Configuration loaded")

	// Initialize ClickHouse
	ch, err := storage.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	defer ch.Close()
	log.Info().Msg("Connected to ClickHouse")

	ctx, cancel := context.WithCancel(context.Background())

	// Initialize session aggregator
	var (
		sessionAgg *session.Aggregator
		sessions   processor.SessionUpdater
	)
	if cfg.Redis.Addr != "" {
		sessionAgg = session.NewAggregator(ch, cfg.Redis, cfg.Batch.SessionTTL)
		defer sessionAgg.Close()
		sessions = sessionAgg
		go flushIdleSessions(ctx, sessionAgg, cfg.Batch.SessionTTL/2)
		log.Info().Dur("ttl", cfg.Batch.SessionTTL).Msg("Session aggregator initialized")
	}

	var opts []processor.Option
	if cfg.Insights.RageClick.Enabled {
		if cfg.Redis.Addr == "" {
			log.Fatal().Msg("Rage click detection requires redis.addr")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		opts = append(opts, processor.WithRageClicks(insights.NewRageClickDetector(rdb, cfg.Insights.RageClick), ch))
		log.Info().
			Int("min_clicks", cfg.Insights.RageClick.MinClicks).
			Int64("time_window_ms", cfg.Insights.RageClick.TimeWindowMs).
			Msg("Rage click detection enabled")
	}

	clickProcessor := processor.NewClickProcessor(ch, sessions, cfg.Batch, opts...)

	kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.Kafka, clickProcessor)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
	}

	go kafkaConsumer.Start(ctx)
	log.Info().Msg("Click processor started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()
	if err := kafkaConsumer.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Kafka consumer")
	}
	clickProcessor.Stop()

	// Flush remaining sessions
	if sessionAgg != nil {
		if err := sessionAgg.FlushAllSessions(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to flush sessions")
		}
	}

	log.Info().Msg("Shutdown complete")
}

// flushIdleSessions persists sessions that have gone quiet, well before
// Redis expires them.
func flushIdleSessions(ctx context.Context, agg *session.Aggregator, idle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := agg.FlushIdle(ctx, idle)
			if err != nil {
				log.Error().Err(err).Msg("Failed to flush idle sessions")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("Flushed idle sessions")
			}
		}
	}
}
