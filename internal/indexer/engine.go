// Package indexer is the local index backend. Documents are inverted into a
// memory index, flushed to immutable .spdx segments when the buffer grows past
// its threshold, merged tier by tier as segments of similar size pile up, and
// merged into a single segment on Consolidate.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/metrics"
)

// LockFile is created in the index directory for as long as an Engine holds it.
const LockFile = "write.lock"

type Engine struct {
	mu       sync.Mutex
	cfg      config.IndexerConfig
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	readers  []*segment.Reader
	analyzer analysis.Analyzer
	sim      similarity.Policy
	nextDoc  uint32
	lock     *os.File
	closed   bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

// WithMetrics reports flushes, merges and segment counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Open takes the write lock on cfg.DataDir, creating the directory if needed,
// and loads any segments already there so new documents are appended.
func Open(cfg config.IndexerConfig, opts ...Option) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, apperrors.New(apperrors.ErrConfig, apperrors.ExitUsage, "index directory is empty")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBackend, err, "creating index directory")
	}
	lockPath := filepath.Join(cfg.DataDir, LockFile)
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, apperrors.Newf(apperrors.ErrLocked, apperrors.ExitFailure, "%s exists", lockPath)
		}
		return nil, apperrors.Wrap(apperrors.ErrBackend, err, "creating write lock")
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())

	e := &Engine{
		cfg:      cfg,
		memIndex: index.NewMemoryIndex(),
		lock:     lock,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	nextGen, err := e.loadExistingSegments()
	if err != nil {
		e.releaseLock()
		return nil, apperrors.Wrap(apperrors.ErrBackend, err, "loading existing segments")
	}
	e.writer = segment.NewWriter(cfg.DataDir, nextGen)
	e.setActiveSegments()
	return e, nil
}

// Configure installs the analyzer and the norm policy. It may be called once,
// before the first Submit.
func (e *Engine) Configure(a analysis.Analyzer, p similarity.Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	if e.analyzer != nil {
		return apperrors.ErrAlreadyConfigured
	}
	if a == nil {
		a = analysis.Simple{}
	}
	if p == nil {
		p = similarity.Default{}
	}
	e.analyzer = a
	e.sim = p
	e.logger.Info("index configured",
		"analyzer", a.Name(),
		"similarity", fmt.Sprintf("%T", p),
	)
	return nil
}

// Submit inverts doc into the memory index under the next document number.
func (e *Engine) Submit(ctx context.Context, doc document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	if e.analyzer == nil {
		return apperrors.ErrNotConfigured
	}

	fields := make([]index.FieldData, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		fields = append(fields, e.invert(f))
	}
	e.memIndex.AddDocument(e.nextDoc, fields)
	e.nextDoc++
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}

	if e.memIndex.Size() < e.cfg.SegmentMaxSize {
		return nil
	}
	e.logger.Debug("memory index reached max size, flushing to disk",
		"size", e.memIndex.Size(),
		"threshold", e.cfg.SegmentMaxSize,
	)
	if err := e.flushLocked(); err != nil {
		return apperrors.Wrap(apperrors.ErrBackend, err, "flushing memory index")
	}
	if err := e.maybeMergeLocked(); err != nil {
		return apperrors.Wrap(apperrors.ErrBackend, err, "merging segments")
	}
	return nil
}

func (e *Engine) invert(f document.Field) index.FieldData {
	fd := index.FieldData{
		Name:   f.Name.String(),
		Value:  f.Value,
		Stored: f.Stored,
	}
	switch f.Treatment {
	case document.NotAnalyzedNoNorms:
		fd.Tokens = []analysis.Token{{Term: f.Value}}
	case document.Analyzed:
		fd.Tokens = e.analyzer.Tokenize(f.Value)
		fd.HasNorm = true
		fd.Norm = e.sim.ComputeNorm(f.Name, invertState(fd.Tokens))
	}
	return fd
}

func invertState(tokens []analysis.Token) similarity.InvertState {
	state := similarity.InvertState{Length: len(tokens)}
	freqs := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if i > 0 && t.Position == tokens[i-1].Position {
			state.NumOverlap++
		}
		freqs[t.Term]++
		if freqs[t.Term] > state.MaxTermFrequency {
			state.MaxTermFrequency = freqs[t.Term]
		}
	}
	state.UniqueTerms = len(freqs)
	return state
}

func (e *Engine) flushLocked() error {
	snapshot := e.memIndex.Snapshot()
	if snapshot.Empty() {
		return nil
	}
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		e.countFlush("error")
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, segmentName))
	if err != nil {
		e.countFlush("error")
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readers = append(e.readers, reader)
	e.memIndex.Reset()
	e.countFlush("success")
	e.setActiveSegments()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", len(e.readers),
	)
	return nil
}

// Consolidate flushes the buffer and merges every segment into one. With a
// single segment on disk it does nothing, so repeated calls are harmless.
func (e *Engine) Consolidate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	if err := e.flushLocked(); err != nil {
		return apperrors.Wrap(apperrors.ErrBackend, err, "flushing before consolidation")
	}
	if len(e.readers) <= 1 {
		return nil
	}
	if err := e.mergeLocked(0); err != nil {
		return apperrors.Wrap(apperrors.ErrBackend, err, "consolidating segments")
	}
	return nil
}

// maybeMergeLocked merges the newest MaxSegmentsBeforeMerge segments while
// they are of similar size: the largest holds fewer than
// MaxSegmentsBeforeMerge times the documents of the smallest. Older, larger
// segments wait until enough peers of their own size accumulate.
func (e *Engine) maybeMergeLocked() error {
	factor := e.cfg.MaxSegmentsBeforeMerge
	for len(e.readers) >= factor {
		start := len(e.readers) - factor
		smallest, largest := e.readers[start].DocCount(), e.readers[start].DocCount()
		for _, r := range e.readers[start+1:] {
			smallest = min(smallest, r.DocCount())
			largest = max(largest, r.DocCount())
		}
		if uint64(largest) >= uint64(factor)*uint64(smallest) {
			return nil
		}
		if err := e.mergeLocked(start); err != nil {
			return err
		}
	}
	return nil
}

// mergeLocked replaces readers[start:] with a single merged segment.
func (e *Engine) mergeLocked(start int) error {
	old := e.readers[start:]
	name, err := segment.Merge(old, e.writer)
	if err != nil {
		return err
	}
	merged, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
	if err != nil {
		return fmt.Errorf("opening merged segment: %w", err)
	}
	old = append([]*segment.Reader(nil), old...)
	e.readers = append(e.readers[:start], merged)
	for _, r := range old {
		if err := r.Close(); err != nil {
			e.logger.Error("closing merged-away segment", "segment", r.Name(), "error", err)
		}
		if err := os.Remove(r.Path()); err != nil {
			e.logger.Error("removing merged-away segment", "segment", r.Name(), "error", err)
		}
	}
	if e.metrics != nil {
		e.metrics.SegmentMergesTotal.Inc()
		e.metrics.MergedDocsTotal.Add(float64(merged.DocCount()))
	}
	e.setActiveSegments()
	e.logger.Info("segments merged",
		"segment", name,
		"merged", len(old),
		"docs", merged.DocCount(),
	)
	return nil
}

// Close flushes what is buffered, closes segment readers and releases the
// write lock. Later calls return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	e.closed = true

	var errs []error
	if err := e.flushLocked(); err != nil {
		errs = append(errs, apperrors.Wrap(apperrors.ErrBackend, err, "final flush"))
	}
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing segment %s: %w", reader.Name(), err))
		}
	}
	e.readers = nil
	if err := e.releaseLock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) releaseLock() error {
	if e.lock == nil {
		return nil
	}
	path := e.lock.Name()
	e.lock.Close()
	e.lock = nil
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing write lock: %w", err)
	}
	return nil
}

// Search returns the postings of term in field across the buffer and every
// segment. Terms of analyzed fields go through the configured analyzer first.
func (e *Engine) Search(field document.FieldName, term string) (index.PostingList, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, apperrors.ErrClosed
	}
	if field == document.Text && e.analyzer != nil {
		tokens := e.analyzer.Tokenize(term)
		if len(tokens) == 0 {
			return nil, nil
		}
		term = tokens[0].Term
	}
	name := field.String()
	allPostings := e.memIndex.Search(name, term)
	for _, reader := range e.readers {
		postings, err := reader.Search(name, term)
		if err != nil {
			return nil, fmt.Errorf("searching segment %s: %w", reader.Name(), err)
		}
		allPostings = append(allPostings, postings...)
	}
	return deduplicatePostings(allPostings), nil
}

// Document returns the stored fields of doc.
func (e *Engine) Document(doc uint32) (index.StoredDoc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.memIndex.Document(doc); ok {
		return d, true
	}
	for i := len(e.readers) - 1; i >= 0; i-- {
		if d, ok := e.readers[i].Document(doc); ok {
			return d, true
		}
	}
	return index.StoredDoc{}, false
}

// Norm returns the norm stored for field of doc. Fields indexed without norms
// report false.
func (e *Engine) Norm(field document.FieldName, doc uint32) (float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.memIndex.Norm(field.String(), doc); ok {
		return n, true
	}
	for i := len(e.readers) - 1; i >= 0; i-- {
		if n, ok := e.readers[i].Norm(field.String(), doc); ok {
			return n, true
		}
	}
	return 0, false
}

// DocCount is the number of documents submitted to this index, including
// those written by earlier builds.
func (e *Engine) DocCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.nextDoc)
}

// Segments lists the file names of the live segments.
func (e *Engine) Segments() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.readers))
	for i, r := range e.readers {
		names[i] = r.Name()
	}
	return names
}

// loadExistingSegments opens every segment in the data directory in
// generation order and returns the next free generation.
func (e *Engine) loadExistingSegments() (int64, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		return 0, fmt.Errorf("reading data directory: %w", err)
	}
	type segFile struct {
		name string
		gen  int64
	}
	var segFiles []segFile
	var nextGen int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		gen, ok := segment.ParseGeneration(entry.Name())
		if !ok {
			continue
		}
		segFiles = append(segFiles, segFile{entry.Name(), gen})
		if gen >= nextGen {
			nextGen = gen + 1
		}
	}
	sort.Slice(segFiles, func(i, j int) bool { return segFiles[i].gen < segFiles[j].gen })

	for _, sf := range segFiles {
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, sf.name))
		if err != nil {
			for _, r := range e.readers {
				r.Close()
			}
			e.readers = nil
			return 0, fmt.Errorf("opening segment %s: %w", sf.name, err)
		}
		e.readers = append(e.readers, reader)
		if reader.MaxDoc()+1 > e.nextDoc {
			e.nextDoc = reader.MaxDoc() + 1
		}
		e.logger.Info("loaded existing segment",
			"segment", sf.name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	if len(segFiles) > 0 {
		e.logger.Info("segment recovery complete",
			"segments_loaded", len(e.readers),
			"next_doc", e.nextDoc,
		)
	}
	return nextGen, nil
}

func (e *Engine) countFlush(status string) {
	if e.metrics != nil {
		e.metrics.SegmentFlushesTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) setActiveSegments() {
	if e.metrics != nil {
		e.metrics.ActiveSegments.Set(float64(len(e.readers)))
	}
}

func deduplicatePostings(postings index.PostingList) index.PostingList {
	if len(postings) <= 1 {
		return postings
	}
	seen := make(map[uint32]int)
	result := make(index.PostingList, 0, len(postings))
	for _, p := range postings {
		if idx, exists := seen[p.Doc]; exists {
			result[idx] = p
		} else {
			seen[p.Doc] = len(result)
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Doc < result[j].Doc
	})
	return result
}
