package ledger

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/build"
)

// Recorder is the part of Store the reporter writes through.
type Recorder interface {
	Start(ctx context.Context, b Build) error
	Progress(ctx context.Context, id string, count int64) error
	Finish(ctx context.Context, id, state string, count int64, errMsg string) error
}

// Reporter mirrors build events into the ledger. Wrap it with build.Guard
// to use it as an Observer.
type Reporter struct {
	rec   Recorder
	input string
	index string
}

func NewReporter(rec Recorder, input, index string) *Reporter {
	return &Reporter{rec: rec, input: input, index: index}
}

func (r *Reporter) Report(ctx context.Context, ev build.Event) error {
	switch ev.Kind {
	case build.EventStarted:
		return r.rec.Start(ctx, Build{
			ID:    ev.BuildID,
			Input: r.input,
			Index: r.index,
			State: build.Running.String(),
		})
	case build.EventProgress:
		return r.rec.Progress(ctx, ev.BuildID, ev.Count)
	case build.EventFinished:
		state, msg := build.Finalized.String(), ""
		if ev.Err != nil {
			state, msg = build.Failed.String(), ev.Err.Error()
		}
		return r.rec.Finish(ctx, ev.BuildID, state, ev.Count, msg)
	}
	return nil
}
