package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/analysis"
)

// FieldData is one field of a document after analysis. Tokens is nil for
// fields kept out of the inverted index.
type FieldData struct {
	Name    string
	Value   string
	Stored  bool
	Tokens  []analysis.Token
	HasNorm bool
	Norm    float32
}

type termKey struct {
	field string
	term  string
}

type MemoryIndex struct {
	mu    sync.RWMutex
	index map[termKey]map[uint32]*Posting
	docs  map[uint32]StoredDoc
	norms []NormEntry
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[termKey]map[uint32]*Posting),
		docs:  make(map[uint32]StoredDoc),
	}
}

// AddDocument records the postings, stored values and norms of one document.
func (m *MemoryIndex) AddDocument(doc uint32, fields []FieldData) {
	termData := make(map[termKey]*Posting)
	stored := StoredDoc{Doc: doc, Fields: make([]StoredField, 0, len(fields))}
	var norms []NormEntry

	for _, f := range fields {
		for _, token := range f.Tokens {
			key := termKey{field: f.Name, term: token.Term}
			p, exists := termData[key]
			if !exists {
				p = &Posting{
					Doc:       doc,
					Positions: make([]int, 0, 4),
				}
				termData[key] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
		}
		if f.Stored {
			stored.Fields = append(stored.Fields, StoredField{Name: f.Name, Value: f.Value})
		}
		if f.HasNorm {
			norms = append(norms, NormEntry{Field: f.Name, Doc: doc, Value: f.Norm})
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, posting := range termData {
		if _, exists := m.index[key]; !exists {
			m.index[key] = make(map[uint32]*Posting)
		}
		m.index[key][doc] = posting
		m.size += int64(len(key.field) + len(key.term) + len(posting.Positions)*8 + 64)
	}
	m.docs[doc] = stored
	for _, sf := range stored.Fields {
		m.size += int64(len(sf.Name) + len(sf.Value) + 32)
	}
	m.norms = append(m.norms, norms...)
	m.size += int64(len(norms) * 24)
}

func (m *MemoryIndex) Search(field, term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[termKey{field: field, term: term}]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Doc < result[j].Doc
	})
	return result
}

// Document returns the stored fields of a buffered document.
func (m *MemoryIndex) Document(doc uint32) (StoredDoc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[doc]
	return d, ok
}

// Norm returns the buffered norm for field of doc.
func (m *MemoryIndex) Norm(field string, doc uint32) (float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.norms {
		if n.Doc == doc && n.Field == field {
			return n.Value, true
		}
	}
	return 0, false
}

func (m *MemoryIndex) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for key, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].Doc < postings[j].Doc
		})
		entries = append(entries, TermEntry{
			Field:    key.field,
			Term:     key.term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Less(entries[j])
	})

	docs := make([]StoredDoc, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Doc < docs[j].Doc
	})

	norms := make([]NormEntry, len(m.norms))
	copy(norms, m.norms)
	sort.Slice(norms, func(i, j int) bool {
		if norms[i].Field != norms[j].Field {
			return norms[i].Field < norms[j].Field
		}
		return norms[i].Doc < norms[j].Doc
	})

	return Snapshot{Terms: entries, Docs: docs, Norms: norms}
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[termKey]map[uint32]*Posting)
	m.docs = make(map[uint32]StoredDoc)
	m.norms = nil
	m.size = 0
}
