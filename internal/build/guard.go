package build

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/resilience"
)

// Reporter is an event sink that can fail, such as a network publisher.
type Reporter interface {
	Report(ctx context.Context, ev Event) error
}

// GuardedObserver adapts a Reporter to Observer. Each call is bounded by a
// timeout, and once the reporter keeps failing its events are dropped until
// the breaker cools down. The finished event always gets one attempt so the
// terminal state is recorded when the sink has recovered.
type GuardedObserver struct {
	name     string
	reporter Reporter
	timeout  time.Duration
	breaker  *resilience.Breaker
	logger   *slog.Logger
}

func Guard(name string, r Reporter, timeout time.Duration, cfg resilience.BreakerConfig) *GuardedObserver {
	return &GuardedObserver{
		name:     name,
		reporter: r,
		timeout:  timeout,
		breaker:  resilience.NewBreaker(name, cfg),
		logger:   slog.Default().With("component", "reporter", "name", name),
	}
}

func (g *GuardedObserver) Observe(ctx context.Context, ev Event) {
	if ev.Kind == EventFinished {
		ctx = context.WithoutCancel(ctx)
	}
	call := func() error {
		return resilience.WithTimeout(ctx, g.timeout, g.name, func(ctx context.Context) error {
			return g.reporter.Report(ctx, ev)
		})
	}
	var err error
	if ev.Kind == EventFinished {
		err = call()
	} else {
		err = g.breaker.Execute(call)
	}
	if err != nil {
		g.logger.Warn("reporting build event failed",
			"build_id", ev.BuildID,
			"event", ev.Kind.String(),
			"error", err,
		)
	}
}

// BreakerState exposes the breaker for health reporting.
func (g *GuardedObserver) BreakerState() resilience.State {
	return g.breaker.State()
}
