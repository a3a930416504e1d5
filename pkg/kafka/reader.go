// Package kafka provides Kafka clients backed by segmentio/kafka-go: a
// bounded topic reader that replays a topic as a finite stream, and a
// producer for loading records into a topic.
package kafka

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
)

// PartitionRange is the span of offsets to read from one partition. End is
// the high-water mark at discovery time and is exclusive.
type PartitionRange struct {
	Partition int
	First     int64
	End       int64
}

func (r PartitionRange) Empty() bool {
	return r.First >= r.End
}

// Accept reports whether a message read at offset belongs to the range, and
// whether the partition is exhausted once it has been read.
func (r PartitionRange) Accept(offset int64) (deliver, done bool) {
	return offset >= r.First && offset < r.End, offset+1 >= r.End
}

// TopicReader reads every message that was in a topic when it was opened,
// one partition after another, and then reports io.EOF. It joins no consumer
// group and commits nothing.
type TopicReader struct {
	cfg    config.KafkaConfig
	topic  string
	ranges []PartitionRange
	pos    int
	reader *kafka.Reader
	logger *slog.Logger
}

// OpenTopic discovers the partitions of topic and their offset ranges.
func OpenTopic(ctx context.Context, cfg config.KafkaConfig, topic string) (*TopicReader, error) {
	ranges, err := discoverRanges(ctx, cfg.Brokers, topic)
	if err != nil {
		return nil, err
	}
	t := &TopicReader{
		cfg:    cfg,
		topic:  topic,
		ranges: ranges,
		logger: slog.Default().With("component", "kafka-reader", "topic", topic),
	}
	var total int64
	for _, r := range ranges {
		total += r.End - r.First
	}
	t.logger.Info("topic opened", "partitions", len(ranges), "messages", total)
	return t, nil
}

func discoverRanges(ctx context.Context, brokers []string, topic string) ([]PartitionRange, error) {
	var conn *kafka.Conn
	var err error
	for _, broker := range brokers {
		conn, err = kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			break
		}
	}
	if conn == nil {
		return nil, fmt.Errorf("dialing kafka brokers %v: %w", brokers, err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return nil, fmt.Errorf("reading partitions of %s: %w", topic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i].ID < partitions[j].ID })

	ranges := make([]PartitionRange, 0, len(partitions))
	for _, p := range partitions {
		leader := net.JoinHostPort(p.Leader.Host, strconv.Itoa(p.Leader.Port))
		lc, err := kafka.DialLeader(ctx, "tcp", leader, topic, p.ID)
		if err != nil {
			return nil, fmt.Errorf("dialing leader of partition %d: %w", p.ID, err)
		}
		first, last, err := readOffsets(lc)
		lc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading offsets of partition %d: %w", p.ID, err)
		}
		ranges = append(ranges, PartitionRange{Partition: p.ID, First: first, End: last})
	}
	return ranges, nil
}

func readOffsets(conn *kafka.Conn) (int64, int64, error) {
	first, err := conn.ReadFirstOffset()
	if err != nil {
		return 0, 0, err
	}
	last, err := conn.ReadLastOffset()
	if err != nil {
		return 0, 0, err
	}
	return first, last, nil
}

// Next returns the next message value. It returns io.EOF once every
// partition has been read up to its recorded end.
func (t *TopicReader) Next(ctx context.Context) ([]byte, error) {
	for {
		if t.pos >= len(t.ranges) {
			return nil, io.EOF
		}
		rg := t.ranges[t.pos]
		if t.reader == nil {
			if rg.Empty() {
				t.pos++
				continue
			}
			t.reader = kafka.NewReader(kafka.ReaderConfig{
				Brokers:   t.cfg.Brokers,
				Topic:     t.topic,
				Partition: rg.Partition,
				MinBytes:  t.cfg.MinBytes,
				MaxBytes:  t.cfg.MaxBytes,
			})
			if err := t.reader.SetOffset(rg.First); err != nil {
				t.closeReader()
				return nil, fmt.Errorf("seeking partition %d: %w", rg.Partition, err)
			}
			t.logger.Debug("reading partition", "partition", rg.Partition, "first", rg.First, "end", rg.End)
		}

		msg, err := t.reader.ReadMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading partition %d: %w", rg.Partition, err)
		}
		deliver, done := rg.Accept(msg.Offset)
		if done {
			if err := t.closeReader(); err != nil {
				return nil, err
			}
			t.pos++
		}
		if !deliver {
			continue
		}
		return msg.Value, nil
	}
}

func (t *TopicReader) closeReader() error {
	if t.reader == nil {
		return nil
	}
	err := t.reader.Close()
	t.reader = nil
	if err != nil {
		return fmt.Errorf("closing partition reader: %w", err)
	}
	return nil
}

func (t *TopicReader) Close() error {
	return t.closeReader()
}
