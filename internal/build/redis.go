package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ProgressPublisher is the subset of the Redis client the RedisReporter uses.
type ProgressPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	SetStatus(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error
}

// StatusKey is the Redis hash holding the latest state of a build.
func StatusKey(buildID string) string {
	return "status-indexer:build:" + buildID
}

type progressMessage struct {
	BuildID   string `json:"build_id"`
	Event     string `json:"event"`
	Count     int64  `json:"count"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RedisReporter publishes every event on a channel and keeps a status hash
// per build. Wrap it with Guard to use it as an Observer.
type RedisReporter struct {
	pub     ProgressPublisher
	channel string
	ttl     time.Duration
	input   string
	index   string
}

func NewRedisReporter(pub ProgressPublisher, channel string, ttl time.Duration, input, index string) *RedisReporter {
	return &RedisReporter{
		pub:     pub,
		channel: channel,
		ttl:     ttl,
		input:   input,
		index:   index,
	}
}

func (o *RedisReporter) Report(ctx context.Context, ev Event) error {
	msg := progressMessage{
		BuildID:   ev.BuildID,
		Event:     ev.Kind.String(),
		Count:     ev.Count,
		ElapsedMs: ev.Elapsed.Milliseconds(),
	}
	state := Running.String()
	if ev.Kind == EventFinished {
		state = Finalized.String()
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
			state = Failed.String()
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding progress message: %w", err)
	}
	var errs []error
	if err := o.pub.Publish(ctx, o.channel, payload); err != nil {
		errs = append(errs, fmt.Errorf("publishing progress: %w", err))
	}

	fields := map[string]any{
		"state":      state,
		"count":      ev.Count,
		"input":      o.input,
		"index":      o.index,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if msg.Error != "" {
		fields["error"] = msg.Error
	}
	if err := o.pub.SetStatus(ctx, StatusKey(ev.BuildID), fields, o.ttl); err != nil {
		errs = append(errs, fmt.Errorf("updating build status: %w", err))
	}
	return errors.Join(errs...)
}
