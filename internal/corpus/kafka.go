package corpus

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
)

// MessageSource yields raw message values and io.EOF at the end.
// kafka.TopicReader satisfies it.
type MessageSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// KafkaStream decodes statuses from a bounded topic replay. Each message
// value is one JSON status.
type KafkaStream struct {
	src   MessageSource
	topic string
	read  int64
}

func NewKafkaStream(src MessageSource, topic string) *KafkaStream {
	return &KafkaStream{src: src, topic: topic}
}

func (k *KafkaStream) Next(ctx context.Context) (status.Status, error) {
	for {
		value, err := k.src.Next(ctx)
		if err != nil {
			return status.Status{}, err
		}
		k.read++
		if blank(value) {
			continue
		}
		st, err := Decode(value)
		if err != nil {
			return status.Status{}, fmt.Errorf("%s message %d: %w", k.topic, k.read, err)
		}
		return st, nil
	}
}

func (k *KafkaStream) Close() error {
	return k.src.Close()
}
