package build

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/metrics"
)

type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventConsolidating
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventConsolidating:
		return "consolidating"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one observation of a running build. Count is the number of
// statuses submitted so far; Err is set only on a failed EventFinished.
type Event struct {
	Kind    EventKind
	BuildID string
	Count   int64
	Elapsed time.Duration
	Err     error
}

// Observer receives build events synchronously on the driver's goroutine.
// Observers must not fail the build; they log their own errors.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Printer writes the human-readable progress report:
//
//	10000 statuses indexed
//	Optimizing index...
//	Total of 12345 statuses indexed
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Observe(_ context.Context, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Kind {
	case EventProgress:
		fmt.Fprintf(p.w, "%d statuses indexed\n", ev.Count)
	case EventConsolidating:
		fmt.Fprintln(p.w, "Optimizing index...")
	case EventFinished:
		if ev.Err == nil {
			fmt.Fprintf(p.w, "Total of %d statuses indexed\n", ev.Count)
		}
	}
}

// MetricsObserver mirrors build progress into Prometheus collectors.
type MetricsObserver struct {
	m *metrics.Metrics
}

func NewMetricsObserver(m *metrics.Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) Observe(_ context.Context, ev Event) {
	switch ev.Kind {
	case EventStarted:
		o.m.BuildState.Set(metrics.StateRunning)
	case EventProgress:
		o.m.ProgressReportsTotal.Inc()
	case EventFinished:
		if ev.Err != nil {
			o.m.BuildState.Set(metrics.StateFailed)
			return
		}
		o.m.BuildState.Set(metrics.StateFinalized)
		o.m.BuildDuration.Observe(ev.Elapsed.Seconds())
	}
}
