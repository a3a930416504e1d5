// Package build drives one bulk index build: it pulls statuses from a
// stream, maps each to a document, submits it to a backend, and consolidates
// and closes the backend once the stream is exhausted.
//
// A Driver runs at most once. The backend is owned by the driver for the
// duration of Run and is closed on every exit path.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/mapping"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/tracing"
)

// DefaultProgressEvery is how many submissions pass between progress
// observations unless WithProgressEvery says otherwise.
const DefaultProgressEvery = 10000

// Backend is a search index being written. Configure must be called once
// before the first Submit.
type Backend interface {
	Configure(a analysis.Analyzer, p similarity.Policy) error
	Submit(ctx context.Context, doc document.Document) error
	Consolidate(ctx context.Context) error
	Close() error
}

type State int32

const (
	NotStarted State = iota
	Running
	Finalized
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Result summarises a finished build.
type Result struct {
	BuildID  string
	Total    int64
	Duration time.Duration
}

type Driver struct {
	stream        status.Stream
	backend       Backend
	analyzer      analysis.Analyzer
	similarity    similarity.Policy
	progressEvery int64
	observers     []Observer
	buildID       string
	logger        *slog.Logger

	mu    sync.Mutex
	state atomic.Int32
	count atomic.Int64
}

type Option func(*Driver)

func WithAnalyzer(a analysis.Analyzer) Option {
	return func(d *Driver) { d.analyzer = a }
}

// WithSimilarity installs the norm policy handed to the backend.
func WithSimilarity(p similarity.Policy) Option {
	return func(d *Driver) { d.similarity = p }
}

func WithProgressEvery(n int64) Option {
	return func(d *Driver) {
		if n > 0 {
			d.progressEvery = n
		}
	}
}

func WithObservers(obs ...Observer) Option {
	return func(d *Driver) { d.observers = append(d.observers, obs...) }
}

// WithBuildID overrides the generated build id.
func WithBuildID(id string) Option {
	return func(d *Driver) { d.buildID = id }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New prepares a build of stream into backend. The analyzer defaults to
// analysis.Simple and the norm policy to similarity.ConstantNorm.
func New(stream status.Stream, backend Backend, opts ...Option) *Driver {
	d := &Driver{
		stream:        stream,
		backend:       backend,
		analyzer:      analysis.Simple{},
		similarity:    similarity.ConstantNorm{},
		progressEvery: DefaultProgressEvery,
		buildID:       uuid.NewString(),
		logger:        logger.WithComponent("build"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) BuildID() string { return d.buildID }

func (d *Driver) State() State { return State(d.state.Load()) }

// Count is the number of statuses submitted so far.
func (d *Driver) Count() int64 { return d.count.Load() }

// Run performs the build. It returns ErrFinalized if the driver has already
// been run.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	d.mu.Lock()
	if d.State() != NotStarted {
		d.mu.Unlock()
		return Result{}, apperrors.ErrFinalized
	}
	d.state.Store(int32(Running))
	d.mu.Unlock()

	ctx = logger.WithBuildID(ctx, d.buildID)
	log := d.logger.With("build_id", d.buildID)
	ctx, span := tracing.StartSpan(ctx, "index_build", d.buildID)
	start := time.Now()

	log.Info("build started",
		"analyzer", d.analyzer.Name(),
		"similarity", fmt.Sprintf("%T", d.similarity),
	)
	d.notify(ctx, Event{Kind: EventStarted, BuildID: d.buildID})

	total, err := d.run(ctx)
	result := Result{BuildID: d.buildID, Total: total, Duration: time.Since(start)}

	span.SetAttr("total", total)
	span.EndWithError(err)
	span.Log(log)

	if err != nil {
		d.state.Store(int32(Failed))
		log.Error("build failed", "submitted", total, "error", err)
	} else {
		d.state.Store(int32(Finalized))
		log.Info("build finalized", "total", total, "duration", result.Duration)
	}
	d.notify(ctx, Event{
		Kind:    EventFinished,
		BuildID: d.buildID,
		Count:   total,
		Elapsed: result.Duration,
		Err:     err,
	})
	return result, err
}

func (d *Driver) run(ctx context.Context) (count int64, err error) {
	closed := false
	defer func() {
		if closed {
			return
		}
		if cerr := d.backend.Close(); cerr != nil {
			d.logger.Error("closing backend after failure", "error", cerr)
			if err == nil {
				err = apperrors.Wrap(apperrors.ErrBackend, cerr, "closing backend")
			}
		}
	}()

	if err := d.backend.Configure(d.analyzer, d.similarity); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrBackend, err, "configuring backend")
	}

	for {
		s, err := d.stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, apperrors.Wrap(apperrors.ErrStream, err, "reading status")
		}
		if err := d.backend.Submit(ctx, mapping.ToDocument(s)); err != nil {
			return count, apperrors.Wrap(apperrors.ErrBackend, err, fmt.Sprintf("submitting status %d", s.ID))
		}
		count++
		d.count.Store(count)
		if count%d.progressEvery == 0 {
			d.notify(ctx, Event{Kind: EventProgress, BuildID: d.buildID, Count: count})
		}
	}

	d.notify(ctx, Event{Kind: EventConsolidating, BuildID: d.buildID, Count: count})
	consolidateCtx, span := tracing.StartChildSpan(ctx, "consolidate")
	err = d.backend.Consolidate(consolidateCtx)
	span.EndWithError(err)
	if err != nil {
		return count, apperrors.Wrap(apperrors.ErrBackend, err, "consolidating index")
	}

	_, span = tracing.StartChildSpan(ctx, "close")
	closed = true
	err = d.backend.Close()
	span.EndWithError(err)
	if err != nil {
		return count, apperrors.Wrap(apperrors.ErrBackend, err, "closing backend")
	}
	return count, nil
}

func (d *Driver) notify(ctx context.Context, ev Event) {
	for _, o := range d.observers {
		o.Observe(ctx, ev)
	}
}
