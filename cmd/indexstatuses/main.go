// Command indexstatuses bulk-builds a full-text index of statuses.
//
// Statuses are read from a JSON-lines file, a directory of such files, or a
// Kafka topic, and written either to a local index directory or to an
// Elasticsearch index. Document-length normalization is disabled by default
// so short and long statuses score alike.
//
// Usage:
//
//	indexstatuses -input statuses.json.gz -index ./index
//	indexstatuses -input kafka://localhost:9092/statuses -index http://localhost:9200/statuses
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/build"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/elasticsearch"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/resilience"
)

const usage = "usage: indexstatuses -input {file|dir|kafka://brokers/topic} -index {dir|http(s)://host:port/index} [-config file.yaml]"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// kafkaInput is a parsed kafka://broker1,broker2/topic location. Empty
// parts fall back to the kafka config section.
type kafkaInput struct {
	brokers []string
	topic   string
}

func parseKafkaInput(raw string) (kafkaInput, bool) {
	rest, ok := strings.CutPrefix(raw, "kafka://")
	if !ok {
		return kafkaInput{}, false
	}
	hosts, topic, _ := strings.Cut(rest, "/")
	var in kafkaInput
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			in.brokers = append(in.brokers, h)
		}
	}
	in.topic = strings.Trim(topic, "/")
	return in, true
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("indexstatuses", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprintln(stderr, usage) }
	input := flags.String("input", "", "status corpus file, directory, or kafka://brokers/topic")
	indexLoc := flags.String("index", "", "index directory or http(s)://host:port/index")
	configPath := flags.String("config", "", "path to YAML config file")
	if err := flags.Parse(args); err != nil {
		return apperrors.ExitUsage
	}
	if *input == "" || *indexLoc == "" {
		fmt.Fprintln(stderr, usage)
		return apperrors.ExitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return apperrors.ExitUsage
	}

	kin, fromKafka := parseKafkaInput(*input)
	if !fromKafka {
		if _, err := os.Stat(*input); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(stderr, "Error: %s does not exist!\n", *input)
			} else {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			fmt.Fprintln(stderr, usage)
			return apperrors.ExitUsage
		}
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, stderr)
	err = execute(ctx, cfg, *input, kin, fromKafka, *indexLoc, stdout)
	if err != nil {
		slog.Error("index build failed", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return apperrors.ExitCode(err)
}

func execute(ctx context.Context, cfg *config.Config, input string, kin kafkaInput, fromKafka bool, indexLoc string, stdout io.Writer) error {
	analyzer, _ := analysis.ByName(cfg.Indexer.Analyzer)
	policy, _ := similarity.ByName(cfg.Indexer.Similarity)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(reg, reg)
	checker := health.NewChecker()
	observers := []build.Observer{build.NewPrinter(stdout), build.NewMetricsObserver(m)}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrBackend, err, "connecting to redis")
		}
		defer rc.Close()
		checker.Register("redis", health.PingCheck(rc.Ping))
		reporter := build.NewRedisReporter(rc, cfg.Redis.Channel, cfg.Redis.StatusTTL, input, indexLoc)
		guarded := build.Guard("redis", reporter, cfg.Reporting.Timeout, breakerConfig(cfg.Reporting))
		checker.Register("redis-reporter", health.CircuitCheck(func() string { return guarded.BreakerState().String() }))
		observers = append(observers, guarded)
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrBackend, err, "connecting to postgres")
		}
		defer db.Close()
		store := ledger.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			return apperrors.Wrap(apperrors.ErrBackend, err, "preparing build ledger")
		}
		checker.Register("postgres", health.PingCheck(db.Ping))
		reporter := ledger.NewReporter(store, input, indexLoc)
		guarded := build.Guard("ledger", reporter, cfg.Reporting.Timeout, breakerConfig(cfg.Reporting))
		checker.Register("ledger-reporter", health.CircuitCheck(func() string { return guarded.BreakerState().String() }))
		observers = append(observers, guarded)
	}

	stream, err := openStream(ctx, cfg, input, kin, fromKafka)
	if err != nil {
		return err
	}
	defer stream.Close()

	backend, err := openBackend(cfg, indexLoc, m, checker)
	if err != nil {
		return err
	}

	driver := build.New(stream, backend,
		build.WithAnalyzer(analyzer),
		build.WithSimilarity(policy),
		build.WithProgressEvery(cfg.Indexer.ProgressEvery),
		build.WithObservers(observers...),
	)
	checker.Register("build", health.StateCheck(func() string { return driver.State().String() }))
	slog.Info("starting index build",
		"build_id", driver.BuildID(),
		"input", input,
		"index", indexLoc,
	)

	if !cfg.Metrics.Enabled {
		_, err := driver.Run(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	server := metrics.NewServer(cfg.Metrics.Port, m, checker)
	g.Go(func() error {
		return server.Run(serverCtx)
	})
	g.Go(func() error {
		defer stopServer()
		_, err := driver.Run(gctx)
		return err
	})
	return g.Wait()
}

func breakerConfig(cfg config.ReportingConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
	}
}

func openStream(ctx context.Context, cfg *config.Config, input string, kin kafkaInput, fromKafka bool) (corpus.Stream, error) {
	if !fromKafka {
		s, err := corpus.Open(input)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStream, err, "opening corpus")
		}
		return s, nil
	}
	kcfg := cfg.Kafka
	if len(kin.brokers) > 0 {
		kcfg.Brokers = kin.brokers
	}
	topic := kcfg.Topic
	if kin.topic != "" {
		topic = kin.topic
	}
	reader, err := kafka.OpenTopic(ctx, kcfg, topic)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStream, err, "opening kafka topic")
	}
	return corpus.NewKafkaStream(reader, topic), nil
}

func openBackend(cfg *config.Config, indexLoc string, m *metrics.Metrics, checker *health.Checker) (build.Backend, error) {
	if addr, index, ok := elasticsearch.ParseLocation(indexLoc); ok {
		escfg := cfg.Elasticsearch
		escfg.Addr = addr
		if index != "" {
			escfg.Index = index
		}
		b, err := elasticsearch.New(escfg, logger.WithComponent("elasticsearch"))
		if err != nil {
			return nil, err
		}
		checker.Register("elasticsearch", health.PingCheck(b.Ping))
		return b, nil
	}
	icfg := cfg.Indexer
	icfg.DataDir = indexLoc
	engine, err := indexer.Open(icfg, indexer.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	return engine, nil
}
