// Package config loads and validates portal configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Document, Search, Explain, RateLimit, Redis, Kafka, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Document  DocumentConfig  `yaml:"document"`
	Search    SearchConfig    `yaml:"search"`
	Explain   ExplainConfig   `yaml:"explain"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// DocumentConfig controls where the agreement text comes from and how long a
// fetched copy is considered fresh.
type DocumentConfig struct {
	ID           string        `yaml:"id"`
	SourceURL    string        `yaml:"sourceUrl"`
	SourcePath   string        `yaml:"sourcePath"`
	CacheDir     string        `yaml:"cacheDir"`
	Freshness    time.Duration `yaml:"freshness"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	MaxBytes     int64         `yaml:"maxBytes"`
	Watch        bool          `yaml:"watch"`
}

// SearchConfig controls ranking and excerpt limits.
type SearchConfig struct {
	DefaultLimit  int `yaml:"defaultLimit"`
	MaxResults    int `yaml:"maxResults"`
	ExcerptLength int `yaml:"excerptLength"`
	TokenLimit    int `yaml:"tokenLimit"`
}

// ExplainConfig holds settings for the AI explanation collaborator.
type ExplainConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Provider        string        `yaml:"provider"`
	Host            string        `yaml:"host"`
	Model           string        `yaml:"model"`
	Token           string        `yaml:"token"`
	MaxExcerpts     int           `yaml:"maxExcerpts"`
	ExcerptLength   int           `yaml:"excerptLength"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
	CacheMaxEntries int           `yaml:"cacheMaxEntries"`
}

// RateLimitConfig controls the per-client request quota.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Backend  string        `yaml:"backend"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	SnapshotEvery   time.Duration `yaml:"snapshotEvery"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
	Notifications   string `yaml:"notifications"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AdminConfig lists the API keys allowed on maintenance routes (document
// refresh, cache invalidation). Only SHA-256 hex digests are configured.
type AdminConfig struct {
	Keys []AdminKey `yaml:"keys"`
}

type AdminKey struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration combinations the portal cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Document.SourceURL == "" && c.Document.SourcePath == "" {
		errs = append(errs, errors.New("document: one of sourceUrl or sourcePath is required"))
	}
	if c.Document.Freshness <= 0 {
		errs = append(errs, errors.New("document: freshness must be positive"))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		errs = append(errs, errors.New("search: defaultLimit must be positive and not exceed maxResults"))
	}
	for i, k := range c.Admin.Keys {
		if !isSHA256Hex(k.Hash) {
			errs = append(errs, fmt.Errorf("admin: key %d (%q) hash must be 64 hex characters", i, k.Name))
		}
	}
	if c.Explain.Enabled {
		switch c.Explain.Provider {
		case "openai", "ollama":
		default:
			errs = append(errs, fmt.Errorf("explain: unknown provider %q", c.Explain.Provider))
		}
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("rateLimit: requests and window must be positive"))
		}
		switch c.RateLimit.Backend {
		case "memory", "redis":
		default:
			errs = append(errs, fmt.Errorf("rateLimit: unknown backend %q", c.RateLimit.Backend))
		}
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    45 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Document: DocumentConfig{
			ID:           "service-agreement",
			SourcePath:   "data/agreement.txt",
			CacheDir:     "data/cache",
			Freshness:    10 * time.Minute,
			FetchTimeout: 10 * time.Second,
			MaxBytes:     8 << 20,
		},
		Search: SearchConfig{
			DefaultLimit:  3,
			MaxResults:    10,
			ExcerptLength: 900,
			TokenLimit:    30,
		},
		Explain: ExplainConfig{
			Enabled:         false,
			Provider:        "openai",
			Host:            "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			MaxExcerpts:     4,
			ExcerptLength:   1200,
			Timeout:         30 * time.Second,
			CacheTTL:        6 * time.Hour,
			CacheMaxEntries: 10000,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Backend:  "memory",
			Requests: 20,
			Window:   time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "portal",
			User:            "portal",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			SnapshotEvery:   5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "portal-group",
			Topics: KafkaTopics{
				AnalyticsEvents: "portal-analytics",
				Notifications:   "portal-notifications",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FV_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FV_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FV_DOCUMENT_ID"); v != "" {
		cfg.Document.ID = v
	}
	if v := os.Getenv("FV_DOCUMENT_SOURCE_URL"); v != "" {
		cfg.Document.SourceURL = v
	}
	if v := os.Getenv("FV_DOCUMENT_SOURCE_PATH"); v != "" {
		cfg.Document.SourcePath = v
	}
	if v := os.Getenv("FV_DOCUMENT_FRESHNESS"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Document.Freshness = d
		}
	}
	if v := os.Getenv("FV_EXPLAIN_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Explain.Enabled = b
		}
	}
	if v := os.Getenv("FV_EXPLAIN_PROVIDER"); v != "" {
		cfg.Explain.Provider = v
	}
	if v := os.Getenv("FV_EXPLAIN_HOST"); v != "" {
		cfg.Explain.Host = v
	}
	if v := os.Getenv("FV_EXPLAIN_MODEL"); v != "" {
		cfg.Explain.Model = v
	}
	if v := os.Getenv("FV_EXPLAIN_TOKEN"); v != "" {
		cfg.Explain.Token = v
	}
	if v := os.Getenv("FV_RATELIMIT_BACKEND"); v != "" {
		cfg.RateLimit.Backend = v
	}
	if v := os.Getenv("FV_RATELIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Requests = n
		}
	}
	if v := os.Getenv("FV_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("FV_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FV_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FV_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("FV_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FV_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FV_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FV_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FV_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FV_ADMIN_KEY_HASHES"); v != "" {
		cfg.Admin.Keys = nil
		for i, h := range strings.Split(v, ",") {
			cfg.Admin.Keys = append(cfg.Admin.Keys, AdminKey{
				Name: fmt.Sprintf("env-%d", i+1),
				Hash: strings.ToLower(strings.TrimSpace(h)),
			})
		}
	}
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
