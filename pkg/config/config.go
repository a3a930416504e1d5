// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Indexer, Elasticsearch, Kafka, Postgres, Redis, Logging, Metrics,
// Reporting).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer       IndexerConfig       `yaml:"indexer"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Redis         RedisConfig         `yaml:"redis"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Reporting     ReportingConfig     `yaml:"reporting"`
}

// IndexerConfig controls the local index writer's memory threshold, segment
// merge policy, analysis and scoring choices, and progress cadence.
type IndexerConfig struct {
	DataDir                string `yaml:"dataDir"`
	SegmentMaxSize         int64  `yaml:"segmentMaxSize"`
	MaxSegmentsBeforeMerge int    `yaml:"maxSegmentsBeforeMerge"`
	ProgressEvery          int64  `yaml:"progressEvery"`
	Analyzer               string `yaml:"analyzer"`
	Similarity             string `yaml:"similarity"`
}

// ElasticsearchConfig holds settings for the remote index backend.
type ElasticsearchConfig struct {
	Addr     string `yaml:"addr"`
	Index    string `yaml:"index"`
	Shards   int    `yaml:"shards"`
	Replicas int    `yaml:"replicas"`
}

// KafkaConfig holds Kafka broker and topic settings for topic-sourced builds.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	MinBytes int      `yaml:"minBytes"`
	MaxBytes int      `yaml:"maxBytes"`
}

// PostgresConfig holds PostgreSQL connection parameters for the build ledger.
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
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters for progress publication.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	Channel   string        `yaml:"channel"`
	StatusTTL time.Duration `yaml:"statusTTL"`
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

// ReportingConfig bounds the optional progress sinks (Redis, Postgres):
// per-call timeout, and how many consecutive failures shed a sink for
// Cooldown.
type ReportingConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values, or an error if the result does not validate.
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

// Validate checks value ranges that would otherwise fail deep inside a build.
func (c *Config) Validate() error {
	if c.Indexer.SegmentMaxSize <= 0 {
		return fmt.Errorf("indexer.segmentMaxSize must be positive")
	}
	if c.Indexer.MaxSegmentsBeforeMerge < 2 {
		return fmt.Errorf("indexer.maxSegmentsBeforeMerge must be at least 2")
	}
	if c.Indexer.ProgressEvery <= 0 {
		return fmt.Errorf("indexer.progressEvery must be positive")
	}
	switch c.Indexer.Analyzer {
	case "simple", "english":
	default:
		return fmt.Errorf("indexer.analyzer %q is not one of simple, english", c.Indexer.Analyzer)
	}
	switch c.Indexer.Similarity {
	case "constant", "default":
	default:
		return fmt.Errorf("indexer.similarity %q is not one of constant, default", c.Indexer.Similarity)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
	}
	if c.Reporting.Timeout < 0 {
		return fmt.Errorf("reporting.timeout must not be negative")
	}
	if c.Redis.Enabled && c.Redis.Channel == "" {
		return fmt.Errorf("redis.channel is required when redis is enabled")
	}
	return nil
}

// defaultConfig returns a Config with defaults for a local reference build.
func defaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			SegmentMaxSize:         64 << 20,
			MaxSegmentsBeforeMerge: 10,
			ProgressEvery:          10000,
			Analyzer:               "simple",
			Similarity:             "constant",
		},
		Elasticsearch: ElasticsearchConfig{
			Addr:     "http://localhost:9200",
			Index:    "statuses",
			Shards:   1,
			Replicas: 0,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "statuses",
			MinBytes: 1e3,
			MaxBytes: 10e6,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "statusindex",
			User:            "statusindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  4,
			Channel:   "status-indexer.progress",
			StatusTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Reporting: ReportingConfig{
			Timeout:          2 * time.Second,
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
		},
	}
}

// applyEnvOverrides reads SI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SI_INDEXER_SEGMENT_MAX_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.SegmentMaxSize = n
		}
	}
	if v := os.Getenv("SI_INDEXER_MAX_SEGMENTS_BEFORE_MERGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MaxSegmentsBeforeMerge = n
		}
	}
	if v := os.Getenv("SI_INDEXER_PROGRESS_EVERY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.ProgressEvery = n
		}
	}
	if v := os.Getenv("SI_INDEXER_ANALYZER"); v != "" {
		cfg.Indexer.Analyzer = v
	}
	if v := os.Getenv("SI_INDEXER_SIMILARITY"); v != "" {
		cfg.Indexer.Similarity = v
	}
	if v := os.Getenv("SI_ELASTICSEARCH_ADDR"); v != "" {
		cfg.Elasticsearch.Addr = v
	}
	if v := os.Getenv("SI_ELASTICSEARCH_INDEX"); v != "" {
		cfg.Elasticsearch.Index = v
	}
	if v := os.Getenv("SI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("SI_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("SI_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("SI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SI_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("SI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SI_REDIS_CHANNEL"); v != "" {
		cfg.Redis.Channel = v
	}
	if v := os.Getenv("SI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SI_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("SI_REPORTING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reporting.Timeout = d
		}
	}
	if v := os.Getenv("SI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
