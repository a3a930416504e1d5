package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/build"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/ledger"
)

type memRecorder struct {
	rows     map[string]*ledger.Build
	failNext bool
}

func (m *memRecorder) Start(_ context.Context, b ledger.Build) error {
	if m.failNext {
		m.failNext = false
		return errors.New("connection reset")
	}
	if m.rows == nil {
		m.rows = make(map[string]*ledger.Build)
	}
	m.rows[b.ID] = &b
	return nil
}

func (m *memRecorder) Progress(_ context.Context, id string, count int64) error {
	m.rows[id].Count = count
	return nil
}

func (m *memRecorder) Finish(_ context.Context, id, state string, count int64, errMsg string) error {
	row := m.rows[id]
	row.State, row.Count, row.Error = state, count, errMsg
	return nil
}

func TestReporterRecordsLifecycle(t *testing.T) {
	rec := &memRecorder{}
	obs := ledger.NewReporter(rec, "corpus/", "index/")
	ctx := context.Background()

	require.NoError(t, obs.Report(ctx, build.Event{Kind: build.EventStarted, BuildID: "b1"}))
	require.Equal(t, "running", rec.rows["b1"].State)
	require.Equal(t, "corpus/", rec.rows["b1"].Input)
	require.Equal(t, "index/", rec.rows["b1"].Index)

	require.NoError(t, obs.Report(ctx, build.Event{Kind: build.EventProgress, BuildID: "b1", Count: 10000}))
	require.Equal(t, int64(10000), rec.rows["b1"].Count)

	require.NoError(t, obs.Report(ctx, build.Event{Kind: build.EventConsolidating, BuildID: "b1", Count: 10001}))
	require.Equal(t, int64(10000), rec.rows["b1"].Count)

	require.NoError(t, obs.Report(ctx, build.Event{Kind: build.EventFinished, BuildID: "b1", Count: 10001}))
	require.Equal(t, "finalized", rec.rows["b1"].State)
	require.Equal(t, int64(10001), rec.rows["b1"].Count)
	require.Empty(t, rec.rows["b1"].Error)
}

func TestReporterRecordsFailure(t *testing.T) {
	rec := &memRecorder{}
	obs := ledger.NewReporter(rec, "in", "out")
	ctx := context.Background()
	require.NoError(t, obs.Report(ctx, build.Event{Kind: build.EventStarted, BuildID: "b2"}))
	require.NoError(t, obs.Report(ctx, build.Event{Kind: build.EventFinished, BuildID: "b2", Count: 3, Err: errors.New("disk full")}))
	require.Equal(t, "failed", rec.rows["b2"].State)
	require.Equal(t, "disk full", rec.rows["b2"].Error)
}

func TestReporterReturnsLedgerErrors(t *testing.T) {
	rec := &memRecorder{failNext: true}
	obs := ledger.NewReporter(rec, "in", "out")
	err := obs.Report(context.Background(), build.Event{Kind: build.EventStarted, BuildID: "b3"})
	require.EqualError(t, err, "connection reset")
	require.Nil(t, rec.rows)
}
