package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer/index"
)

// Reader serves lookups from one segment file. The dictionary, stored
// documents and norms are held in memory; postings are read on demand.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	docs     []index.StoredDoc
	norms    []index.NormEntry
	postBase int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := openReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func openReader(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.NormsOffset+header.NormsSize); err != nil {
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}

	r := &Reader{
		file:     f,
		filePath: path,
		header:   header,
		postBase: header.PostOffset,
	}
	sections := []struct {
		name   string
		offset int64
		size   int64
		crc    uint32
		into   any
	}{
		{"dictionary", header.DictOffset, header.DictSize, binary.LittleEndian.Uint32(footer[0:4]), &r.dict},
		{"stored documents", header.StoredOffset, header.StoredSize, binary.LittleEndian.Uint32(footer[8:12]), &r.docs},
		{"norms", header.NormsOffset, header.NormsSize, binary.LittleEndian.Uint32(footer[12:16]), &r.norms},
	}
	for _, s := range sections {
		data := make([]byte, s.size)
		if _, err := f.ReadAt(data, s.offset); err != nil {
			return nil, fmt.Errorf("reading %s: %w", s.name, err)
		}
		if crc32.ChecksumIEEE(data) != s.crc {
			return nil, fmt.Errorf("checksum mismatch in %s of %s", s.name, filepath.Base(path))
		}
		if err := json.Unmarshal(data, s.into); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", s.name, err)
		}
	}
	return r, nil
}

func (r *Reader) Search(field, term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return index.CompareKey(r.dict[i].Field, r.dict[i].Term, field, term) >= 0
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.readPostings(r.dict[idx])
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// ForEachTerm visits every dictionary entry in (field, term) order with its
// postings loaded.
func (r *Reader) ForEachTerm(fn func(index.TermEntry) error) error {
	for _, entry := range r.dict {
		postings, err := r.readPostings(entry)
		if err != nil {
			return fmt.Errorf("term %s:%q: %w", entry.Field, entry.Term, err)
		}
		if err := fn(index.TermEntry{Field: entry.Field, Term: entry.Term, Postings: postings}); err != nil {
			return err
		}
	}
	return nil
}

// Document returns the stored fields of doc if this segment holds it.
func (r *Reader) Document(doc uint32) (index.StoredDoc, bool) {
	i := sort.Search(len(r.docs), func(i int) bool { return r.docs[i].Doc >= doc })
	if i < len(r.docs) && r.docs[i].Doc == doc {
		return r.docs[i], true
	}
	return index.StoredDoc{}, false
}

// Norm returns the norm recorded for field of doc.
func (r *Reader) Norm(field string, doc uint32) (float32, bool) {
	i := sort.Search(len(r.norms), func(i int) bool {
		n := r.norms[i]
		return n.Field > field || (n.Field == field && n.Doc >= doc)
	})
	if i < len(r.norms) && r.norms[i].Field == field && r.norms[i].Doc == doc {
		return r.norms[i].Value, true
	}
	return 0, false
}

func (r *Reader) Docs() []index.StoredDoc {
	return r.docs
}

func (r *Reader) Norms() []index.NormEntry {
	return r.norms
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) MaxDoc() uint32 {
	return r.header.MaxDoc
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

func (r *Reader) Close() error {
	return r.file.Close()
}
