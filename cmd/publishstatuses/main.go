// Command publishstatuses loads a status corpus into a Kafka topic so that
// indexstatuses can build from kafka://brokers/topic.
//
// Usage:
//
//	publishstatuses -input statuses.json.gz [-topic statuses] [-config file.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/logger"
)

const usage = "usage: publishstatuses -input {file|dir} [-topic name] [-batch n] [-config file.yaml]"

// Publisher is the producer side publishstatuses writes through.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("publishstatuses", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprintln(stderr, usage) }
	input := flags.String("input", "", "status corpus file or directory")
	topic := flags.String("topic", "", "destination topic (defaults to kafka.topic)")
	batch := flags.Int("batch", 500, "statuses per produce call")
	configPath := flags.String("config", "", "path to YAML config file")
	if err := flags.Parse(args); err != nil {
		return apperrors.ExitUsage
	}
	if *input == "" || *batch <= 0 {
		fmt.Fprintln(stderr, usage)
		return apperrors.ExitUsage
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return apperrors.ExitUsage
	}
	if *topic == "" {
		*topic = cfg.Kafka.Topic
	}

	stream, err := corpus.Open(*input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stderr, "Error: %s does not exist!\n", *input)
			fmt.Fprintln(stderr, usage)
			return apperrors.ExitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return apperrors.ExitFailure
	}
	defer stream.Close()

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, stderr)
	producer := kafka.NewProducer(cfg.Kafka, *topic)
	defer producer.Close()

	n, err := publish(ctx, stream, producer, *batch)
	if err != nil {
		slog.Error("publish failed", "topic", *topic, "published", n, "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	fmt.Fprintf(stdout, "Published %d statuses to %s\n", n, *topic)
	return apperrors.ExitOK
}

// publish drains stream into pub in batches keyed by status id, so a status
// always lands on the same partition.
func publish(ctx context.Context, stream status.Stream, pub Publisher, batchSize int) (int64, error) {
	var published int64
	events := make([]kafka.Event, 0, batchSize)
	flush := func() error {
		if err := pub.PublishBatch(ctx, events); err != nil {
			return apperrors.Wrap(apperrors.ErrBackend, err, "publishing statuses")
		}
		published += int64(len(events))
		events = events[:0]
		return nil
	}
	for {
		s, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return published, apperrors.Wrap(apperrors.ErrStream, err, "reading corpus")
		}
		value, err := corpus.Encode(s)
		if err != nil {
			return published, apperrors.Wrap(apperrors.ErrStream, err, "encoding status")
		}
		events = append(events, kafka.Event{Key: strconv.FormatInt(s.ID, 10), Value: value})
		if len(events) == batchSize {
			if err := flush(); err != nil {
				return published, err
			}
		}
	}
	if len(events) > 0 {
		if err := flush(); err != nil {
			return published, err
		}
	}
	return published, nil
}
