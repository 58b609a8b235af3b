package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/alverniaplanet/website/internal/collect"
	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/enricher"
	"github.com/alverniaplanet/website/internal/gtag"
	"github.com/alverniaplanet/website/internal/handler"
	"github.com/alverniaplanet/website/internal/producer"
	"github.com/alverniaplanet/website/internal/server"
	"github.com/alverniaplanet/website/internal/site"
	"github.com/alverniaplanet/website/internal/validation"
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
		configPath = "config/site.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().Msg("Starting Alvernia Planet site...")
	ctx := context.Background()

	ga := gtag.NewClient(cfg.Analytics)
	siteOpts := site.Options{
		BaseURL:       cfg.Site.BaseURL,
		DefaultLocale: cfg.Site.DefaultLocale,
		BookingURL:    cfg.Site.BookingURL,
		Promo:         cfg.Site.Promo,
		MeasurementID: ga.MeasurementID(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	var grpcServer *grpc.Server
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := producer.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka producer")
		}
		defer kafkaProducer.Close()
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka producer initialized")

		var rdb *redis.Client
		if cfg.Redis.Addr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, site keys uncached and rate limits open")
			}
		}

		stores := validation.MultiStore{validation.NewStaticSiteStore(cfg.Sites)}
		if cfg.Postgres.DSN != "" {
			pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to connect to Postgres")
			}
			defer pool.Close()
			stores = append(stores, validation.NewPostgresSiteStore(pool))
			log.Info().Msg("Postgres site key store initialized")
		}
		validator := validation.NewValidator(stores, rdb, cfg.RateLimit)
		log.Info().Int("static_sites", len(cfg.Sites)).Msg("Validator initialized")

		eventEnricher := enricher.NewEnricher(cfg.GeoIP.DatabasePath)
		defer eventEnricher.Close()
		log.Info().Msg("Enricher initialized")

		collector := collect.NewCollector(validator, kafkaProducer, eventEnricher, ga, cfg.Collect)

		grpcServer = grpc.NewServer()
		server.RegisterClickIngestServer(grpcServer, server.NewIngestServer(collector))
		go func() {
			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to listen for gRPC")
			}
			log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
			if err := grpcServer.Serve(lis); err != nil {
				log.Fatal().Err(err).Msg("Failed to serve gRPC")
			}
		}()

		handler.NewHTTPHandler(collector, cfg.Collect.MaxBodyBytes).Routes(r, cfg.Collect.AllowedOrigins)
		siteOpts.SiteKey = cfg.Site.SiteKey
	} else {
		log.Warn().Msg("No Kafka brokers configured, click collection disabled")
		r.Get("/health", handler.HealthCheck)
	}

	pages, err := site.New(siteOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load site")
	}
	pages.Routes(r)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	ga.Wait()
	log.Info().Msg("Servers stopped")
}
