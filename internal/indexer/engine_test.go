package indexer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/mapping"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/metrics"
)

func testConfig(dir string) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:                dir,
		SegmentMaxSize:         64 << 20,
		MaxSegmentsBeforeMerge: 10,
		ProgressEvery:          10000,
		Analyzer:               "simple",
		Similarity:             "constant",
	}
}

func openEngine(t *testing.T, cfg config.IndexerConfig, p similarity.Policy, opts ...indexer.Option) *indexer.Engine {
	t.Helper()
	opts = append([]indexer.Option{indexer.WithLogger(logger.Discard())}, opts...)
	e, err := indexer.Open(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Configure(analysis.Simple{}, p))
	return e
}

func submit(t *testing.T, e *indexer.Engine, statuses ...status.Status) {
	t.Helper()
	for _, s := range statuses {
		require.NoError(t, e.Submit(context.Background(), mapping.ToDocument(s)))
	}
}

func longText(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ", words))
}

func TestConstantNormIgnoresLength(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()), similarity.ConstantNorm{})
	defer e.Close()
	submit(t, e,
		status.Status{ID: 1, ScreenName: "short", Text: "one two three"},
		status.Status{ID: 2, ScreenName: "long", Text: longText(3000)},
	)
	require.NoError(t, e.Consolidate(context.Background()))

	short, ok := e.Norm(document.Text, 0)
	require.True(t, ok)
	long, ok := e.Norm(document.Text, 1)
	require.True(t, ok)
	require.Equal(t, float32(1), short)
	require.Equal(t, short, long)

	for _, f := range []document.FieldName{document.ID, document.ScreenName, document.CreatedAt} {
		_, ok := e.Norm(f, 0)
		require.False(t, ok, f.String())
	}
}

func TestDefaultNormDependsOnLength(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()), similarity.Default{})
	defer e.Close()
	submit(t, e,
		status.Status{ID: 1, Text: "one two three"},
		status.Status{ID: 2, Text: longText(3000)},
	)

	short, _ := e.Norm(document.Text, 0)
	long, _ := e.Norm(document.Text, 1)
	require.Greater(t, short, long)
}

func TestFieldTreatments(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()), similarity.ConstantNorm{})
	defer e.Close()
	submit(t, e, status.Status{
		ID:         42,
		ScreenName: "GoLang",
		CreatedAt:  "Tue Feb 01 10:00:00 +0000 2011",
		Text:       "Hello, Gophers!",
	})

	postings, err := e.Search(document.ID, "42")
	require.NoError(t, err)
	require.Len(t, postings, 1)

	postings, err = e.Search(document.ScreenName, "GoLang")
	require.NoError(t, err)
	require.Len(t, postings, 1, "screen_name is matched exactly")
	postings, err = e.Search(document.ScreenName, "golang")
	require.NoError(t, err)
	require.Empty(t, postings)

	postings, err = e.Search(document.Text, "GOPHERS")
	require.NoError(t, err)
	require.Len(t, postings, 1, "text goes through the analyzer")

	postings, err = e.Search(document.CreatedAt, "Tue Feb 01 10:00:00 +0000 2011")
	require.NoError(t, err)
	require.Empty(t, postings, "create_at is stored only")

	doc, ok := e.Document(0)
	require.True(t, ok)
	v, ok := doc.Get("create_at")
	require.True(t, ok)
	require.Equal(t, "Tue Feb 01 10:00:00 +0000 2011", v)
	require.Len(t, doc.Fields, 4)
}

func TestConsolidateIsIdempotent(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SegmentMaxSize = 1
	e := openEngine(t, cfg, similarity.ConstantNorm{})
	defer e.Close()
	submit(t, e,
		status.Status{ID: 1, ScreenName: "a", Text: "go is fun"},
		status.Status{ID: 2, ScreenName: "b", Text: "go go go"},
		status.Status{ID: 3, ScreenName: "a", Text: "rust is fun too"},
	)
	require.Len(t, e.Segments(), 3)

	ctx := context.Background()
	require.NoError(t, e.Consolidate(ctx))
	require.Len(t, e.Segments(), 1)
	first, err := e.Search(document.Text, "fun")
	require.NoError(t, err)
	byUser, err := e.Search(document.ScreenName, "a")
	require.NoError(t, err)

	require.NoError(t, e.Consolidate(ctx))
	require.Len(t, e.Segments(), 1)
	second, err := e.Search(document.Text, "fun")
	require.NoError(t, err)
	require.Equal(t, first, second)
	again, err := e.Search(document.ScreenName, "a")
	require.NoError(t, err)
	require.Equal(t, byUser, again)
	require.Len(t, first, 2)
}

func TestAutomaticMerge(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SegmentMaxSize = 1
	cfg.MaxSegmentsBeforeMerge = 2
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	e := openEngine(t, cfg, similarity.ConstantNorm{}, indexer.WithMetrics(m))
	defer e.Close()

	for i := int64(1); i <= 3; i++ {
		submit(t, e, status.Status{ID: i, Text: "merge me"})
	}
	// 1+1 merge into 2, the third segment waits for a peer.
	require.Len(t, e.Segments(), 2)
	require.Equal(t, float64(1), testutil.ToFloat64(m.SegmentMergesTotal))

	submit(t, e, status.Status{ID: 4, Text: "merge me"})
	require.Len(t, e.Segments(), 1)
	require.Equal(t, float64(3), testutil.ToFloat64(m.SegmentMergesTotal))
	require.Equal(t, float64(4), testutil.ToFloat64(m.DocsIndexedTotal))
	require.Equal(t, float64(4), testutil.ToFloat64(m.SegmentFlushesTotal.WithLabelValues("success")))

	postings, err := e.Search(document.Text, "merge")
	require.NoError(t, err)
	require.Len(t, postings, 4)
}

func TestAutomaticMergeLeavesLargeSegments(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SegmentMaxSize = 1
	cfg.MaxSegmentsBeforeMerge = 2
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	e := openEngine(t, cfg, similarity.ConstantNorm{}, indexer.WithMetrics(m))
	defer e.Close()

	const n = 60
	for i := int64(1); i <= n; i++ {
		submit(t, e, status.Status{ID: i, ScreenName: "bulk", Text: "bulk load"})
	}
	// Each document is rewritten once per doubling, about n*log2(n) in
	// total. Merging everything on every pass would be closer to n*n/4.
	require.LessOrEqual(t, testutil.ToFloat64(m.MergedDocsTotal), float64(n*6))
	require.LessOrEqual(t, len(e.Segments()), 6)

	postings, err := e.Search(document.Text, "bulk")
	require.NoError(t, err)
	require.Len(t, postings, n)
	for doc := uint32(0); doc < n; doc++ {
		_, ok := e.Document(doc)
		require.True(t, ok, "doc %d", doc)
	}

	require.NoError(t, e.Consolidate(context.Background()))
	require.Len(t, e.Segments(), 1)
	postings, err = e.Search(document.ScreenName, "bulk")
	require.NoError(t, err)
	require.Len(t, postings, n)
}

func TestWriteLockIsExclusive(t *testing.T) {
	cfg := testConfig(t.TempDir())
	e, err := indexer.Open(cfg, indexer.WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = indexer.Open(cfg, indexer.WithLogger(logger.Discard()))
	require.ErrorIs(t, err, apperrors.ErrLocked)

	require.NoError(t, e.Close())
	_, err = os.Stat(filepath.Join(cfg.DataDir, indexer.LockFile))
	require.True(t, os.IsNotExist(err))

	again, err := indexer.Open(cfg, indexer.WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestReopenAppends(t *testing.T) {
	cfg := testConfig(t.TempDir())
	e := openEngine(t, cfg, similarity.ConstantNorm{})
	submit(t, e, status.Status{ID: 1, Text: "first build"})
	require.NoError(t, e.Close())

	e = openEngine(t, cfg, similarity.ConstantNorm{})
	defer e.Close()
	require.Equal(t, 1, e.DocCount())
	submit(t, e, status.Status{ID: 2, Text: "second build"})
	require.NoError(t, e.Consolidate(context.Background()))

	postings, err := e.Search(document.Text, "build")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	require.Equal(t, uint32(1), postings[1].Doc)

	doc, ok := e.Document(1)
	require.True(t, ok)
	id, _ := doc.Get("id")
	require.Equal(t, "2", id)
}

func TestLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	e, err := indexer.Open(testConfig(t.TempDir()), indexer.WithLogger(logger.Discard()))
	require.NoError(t, err)

	doc := mapping.ToDocument(status.Status{ID: 1})
	require.ErrorIs(t, e.Submit(ctx, doc), apperrors.ErrNotConfigured)

	require.NoError(t, e.Configure(analysis.Simple{}, similarity.ConstantNorm{}))
	require.ErrorIs(t, e.Configure(analysis.Simple{}, similarity.ConstantNorm{}), apperrors.ErrAlreadyConfigured)

	bad := document.Document{Fields: []document.Field{{Name: document.Text, Treatment: document.NotIndexed}}}
	require.ErrorIs(t, e.Submit(ctx, bad), apperrors.ErrInvalidField)

	require.NoError(t, e.Submit(ctx, doc))
	require.NoError(t, e.Close())
	require.ErrorIs(t, e.Close(), apperrors.ErrClosed)
	require.ErrorIs(t, e.Submit(ctx, doc), apperrors.ErrClosed)
	require.ErrorIs(t, e.Consolidate(ctx), apperrors.ErrClosed)
}

func TestSubmitHonoursContext(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()), similarity.ConstantNorm{})
	defer e.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.Submit(ctx, mapping.ToDocument(status.Status{ID: 1})), context.Canceled)
}

func BenchmarkEngineSubmit(b *testing.B) {
	e, err := indexer.Open(testConfig(b.TempDir()), indexer.WithLogger(logger.Discard()))
	require.NoError(b, err)
	defer e.Close()
	require.NoError(b, e.Configure(analysis.Simple{}, similarity.ConstantNorm{}))
	doc := mapping.ToDocument(status.Status{
		ID:         1,
		ScreenName: "bench",
		Text:       "benchmarking the local index backend with a typical short status update",
	})
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.Submit(ctx, doc); err != nil {
			b.Fatal(err)
		}
	}
}
