package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Site       SiteConfig       `yaml:"site"`
	Collect    CollectConfig    `yaml:"collect"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Sites      []SiteKeyConfig  `yaml:"sites"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	GeoIP      GeoIPConfig      `yaml:"geoip"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Batch      BatchConfig      `yaml:"batch"`
	Insights   InsightsConfig   `yaml:"insights"`
}

type ServerConfig struct {
	GRPCPort        int           `yaml:"grpc_port"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SiteConfig struct {
	BaseURL       string `yaml:"base_url"`
	DefaultLocale string `yaml:"default_locale"`
	BookingURL    string `yaml:"booking_url"`
	Promo         bool   `yaml:"promo"`

	// SiteKey is embedded in rendered pages for the tracker script.
	SiteKey string `yaml:"site_key"`
}

type CollectConfig struct {
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	MaxBatchSize   int      `yaml:"max_batch_size"`
	MaxPathDepth   int      `yaml:"max_path_depth"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AnalyticsConfig configures GA4 forwarding. An empty MeasurementID
// disables it.
type AnalyticsConfig struct {
	MeasurementID string        `yaml:"measurement_id"`
	APISecret     string        `yaml:"api_secret"`
	Endpoint      string        `yaml:"endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
}

func (a AnalyticsConfig) Enabled() bool { return a.MeasurementID != "" }

type SiteKeyConfig struct {
	ID      string   `yaml:"id"`
	Key     string   `yaml:"key"`
	Origins []string `yaml:"origins"`
}

type KafkaConfig struct {
	Brokers       []string          `yaml:"brokers"`
	Topics        map[string]string `yaml:"topics"`
	ConsumerGroup string            `yaml:"consumer_group"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
}

type BatchConfig struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

type InsightsConfig struct {
	RageClick RageClickConfig `yaml:"rage_click"`
}

type RageClickConfig struct {
	Enabled      bool  `yaml:"enabled"`
	MinClicks    int   `yaml:"min_clicks"`
	TimeWindowMs int64 `yaml:"time_window_ms"`
	RadiusPx     int   `yaml:"radius_px"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Site.DefaultLocale == "" {
		c.Site.DefaultLocale = "pl"
	}
	if c.Collect.MaxBodyBytes == 0 {
		c.Collect.MaxBodyBytes = 64 << 10
	}
	if c.Collect.MaxBatchSize == 0 {
		c.Collect.MaxBatchSize = 50
	}
	if c.Collect.MaxPathDepth == 0 {
		c.Collect.MaxPathDepth = 32
	}
	if c.Analytics.Endpoint == "" {
		c.Analytics.Endpoint = "https://www.google-analytics.com/mp/collect"
	}
	if c.Analytics.Timeout == 0 {
		c.Analytics.Timeout = 5 * time.Second
	}
	if c.Kafka.Topics == nil {
		c.Kafka.Topics = map[string]string{}
	}
	if c.Kafka.Topics["clicks"] == "" {
		c.Kafka.Topics["clicks"] = "site.clicks"
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "click-processor"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.Batch.Size == 0 {
		c.Batch.Size = 1000
	}
	if c.Batch.FlushInterval == 0 {
		c.Batch.FlushInterval = 5 * time.Second
	}
	if c.Batch.SessionTTL == 0 {
		c.Batch.SessionTTL = 30 * time.Minute
	}
	if c.ClickHouse.MaxOpenConns == 0 {
		c.ClickHouse.MaxOpenConns = 10
	}
	if c.ClickHouse.MaxIdleConns == 0 {
		c.ClickHouse.MaxIdleConns = 5
	}
	if c.Insights.RageClick.MinClicks == 0 {
		c.Insights.RageClick.MinClicks = 3
	}
	if c.Insights.RageClick.TimeWindowMs == 0 {
		c.Insights.RageClick.TimeWindowMs = 1000
	}
	if c.Insights.RageClick.RadiusPx == 0 {
		c.Insights.RageClick.RadiusPx = 30
	}
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	switch c.Site.DefaultLocale {
	case "pl", "en":
	default:
		return fmt.Errorf("site.default_locale: unsupported locale %q", c.Site.DefaultLocale)
	}
	if c.Analytics.Enabled() && c.Analytics.APISecret == "" {
		return errors.New("analytics.api_secret is required when measurement_id is set")
	}
	if c.Collect.MaxBatchSize < 0 || c.Collect.MaxPathDepth < 0 || c.Collect.MaxBodyBytes < 0 {
		return errors.New("collect limits must be positive")
	}
	if rc := c.Insights.RageClick; rc.MinClicks < 2 || rc.TimeWindowMs < 0 || rc.RadiusPx < 0 {
		return errors.New("insights.rage_click: min_clicks must be at least 2 and limits positive")
	}

	keys := make(map[string]struct{}, len(c.Sites))
	for i, s := range c.Sites {
		if s.ID == "" || s.Key == "" {
			return fmt.Errorf("sites[%d]: id and key are required", i)
		}
		if _, dup := keys[s.Key]; dup {
			return fmt.Errorf("sites[%d]: duplicate key for site %q", i, s.ID)
		}
		keys[s.Key] = struct{}{}
	}
	return nil
}
