package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, int64(10000), cfg.Indexer.ProgressEvery)
	require.Equal(t, "simple", cfg.Indexer.Analyzer)
	require.Equal(t, "constant", cfg.Indexer.Similarity)
	require.Equal(t, 10, cfg.Indexer.MaxSegmentsBeforeMerge)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "statuses", cfg.Elasticsearch.Index)
	require.False(t, cfg.Postgres.Enabled)
	require.False(t, cfg.Redis.Enabled)
	require.Equal(t, 2*time.Second, cfg.Reporting.Timeout)
	require.Equal(t, 3, cfg.Reporting.FailureThreshold)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexer.yaml")
	yaml := `
indexer:
  progressEvery: 500
  analyzer: english
elasticsearch:
  index: tweets2011
logging:
  level: debug
reporting:
  cooldown: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("SI_KAFKA_BROKERS", "broker-a:29092, broker-b:29093")
	t.Setenv("SI_INDEXER_SIMILARITY", "default")
	t.Setenv("SI_POSTGRES_ENABLED", "true")
	t.Setenv("SI_REPORTING_TIMEOUT", "750ms")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, int64(500), cfg.Indexer.ProgressEvery)
	require.Equal(t, "english", cfg.Indexer.Analyzer)
	require.Equal(t, "default", cfg.Indexer.Similarity)
	require.Equal(t, "tweets2011", cfg.Elasticsearch.Index)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 5*time.Second, cfg.Reporting.Cooldown)
	require.Equal(t, 750*time.Millisecond, cfg.Reporting.Timeout)
	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.Kafka.Brokers)
	require.True(t, cfg.Postgres.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "analyzer", env: map[string]string{"SI_INDEXER_ANALYZER": "klingon"}},
		{name: "similarity", env: map[string]string{"SI_INDEXER_SIMILARITY": "bm42"}},
		{name: "progress", env: map[string]string{"SI_INDEXER_PROGRESS_EVERY": "0"}},
		{name: "merge policy", env: map[string]string{"SI_INDEXER_MAX_SEGMENTS_BEFORE_MERGE": "1"}},
		{name: "metrics port", env: map[string]string{"SI_METRICS_ENABLED": "true", "SI_METRICS_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := config.PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	require.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}
