package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 96
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the fixed-size header written at the start of every
// segment. Sections follow in the order postings, dictionary, stored
// documents, norms.
type SegmentHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    int64
	DictOffset   int64
	DictSize     int64
	PostOffset   int64
	PostSize     int64
	StoredOffset int64
	StoredSize   int64
	NormsOffset  int64
	NormsSize    int64
	MaxDoc       uint32
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.StoredOffset))
	binary.LittleEndian.PutUint64(b[64:72], uint64(h.StoredSize))
	binary.LittleEndian.PutUint64(b[72:80], uint64(h.NormsOffset))
	binary.LittleEndian.PutUint64(b[80:88], uint64(h.NormsSize))
	binary.LittleEndian.PutUint32(b[88:92], h.MaxDoc)
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		TermCount:    binary.LittleEndian.Uint32(b[8:12]),
		DocCount:     binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[16:24])),
		DictOffset:   int64(binary.LittleEndian.Uint64(b[24:32])),
		DictSize:     int64(binary.LittleEndian.Uint64(b[32:40])),
		PostOffset:   int64(binary.LittleEndian.Uint64(b[40:48])),
		PostSize:     int64(binary.LittleEndian.Uint64(b[48:56])),
		StoredOffset: int64(binary.LittleEndian.Uint64(b[56:64])),
		StoredSize:   int64(binary.LittleEndian.Uint64(b[64:72])),
		NormsOffset:  int64(binary.LittleEndian.Uint64(b[72:80])),
		NormsSize:    int64(binary.LittleEndian.Uint64(b[80:88])),
		MaxDoc:       binary.LittleEndian.Uint32(b[88:92]),
	}
}

// DictEntry maps a (field, term) pair to its postings offset, length, and
// document frequency in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer serialises snapshots into new .spdx segment files named by an
// increasing generation number.
type Writer struct {
	dataDir string
	nextGen int64
}

// NewWriter creates a Writer that writes segments into the given directory,
// starting at generation nextGen.
func NewWriter(dataDir string, nextGen int64) *Writer {
	return &Writer{dataDir: dataDir, nextGen: nextGen}
}

// FileName returns the segment file name for a generation.
func FileName(gen int64) string {
	return fmt.Sprintf("seg_%010d%s", gen, Extension)
}

// ParseGeneration extracts the generation from a segment file name.
func ParseGeneration(name string) (int64, bool) {
	if !strings.HasPrefix(name, "seg_") || !strings.HasSuffix(name, Extension) {
		return 0, false
	}
	gen, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "seg_"), Extension), 10, 64)
	if err != nil || gen < 0 {
		return 0, false
	}
	return gen, true
}

// Write atomically creates a new segment file containing the snapshot.
func (w *Writer) Write(snap index.Snapshot) (string, error) {
	if snap.Empty() {
		return "", fmt.Errorf("cannot write empty segment")
	}
	b, err := w.Create()
	if err != nil {
		return "", err
	}
	for _, entry := range snap.Terms {
		if err := b.AddTerm(entry); err != nil {
			b.Abort()
			return "", err
		}
	}
	for _, doc := range snap.Docs {
		if err := b.AddDoc(doc); err != nil {
			b.Abort()
			return "", err
		}
	}
	for _, norm := range snap.Norms {
		if err := b.AddNorm(norm); err != nil {
			b.Abort()
			return "", err
		}
	}
	return b.Finish()
}

// Create starts the next segment. Content is streamed to a .tmp file and
// renamed into place by Finish.
func (w *Writer) Create() (*Builder, error) {
	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	name := FileName(w.nextGen)
	finalPath := filepath.Join(w.dataDir, name)
	f, err := os.Create(finalPath + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp segment file: %w", err)
	}
	b := &Builder{
		w:         w,
		f:         f,
		buf:       bufio.NewWriterSize(f, 256<<10),
		name:      name,
		finalPath: finalPath,
		offset:    int64(HeaderSize),
		header: SegmentHeader{
			Magic:      MagicBytes,
			Version:    FormatVersion,
			CreatedAt:  time.Now().Unix(),
			PostOffset: int64(HeaderSize),
		},
	}
	// Placeholder; the real header is written by Finish.
	if _, err := f.Write(b.header.encode()); err != nil {
		b.Abort()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return b, nil
}

type section int

const (
	sectionPostings section = iota
	sectionDocs
	sectionNorms
	sectionDone
)

// Builder writes one segment incrementally. Terms must be added in
// (field, term) order, then stored documents in doc order, then norms in
// (field, doc) order. Only the dictionary is held in memory.
type Builder struct {
	w         *Writer
	f         *os.File
	buf       *bufio.Writer
	name      string
	finalPath string
	header    SegmentHeader
	offset    int64
	dict      []DictEntry
	section   section
	count     int
	crc       hash.Hash32
	checksums []uint32
	lastDoc   uint32
}

func (b *Builder) write(p []byte) error {
	n, err := b.buf.Write(p)
	b.offset += int64(n)
	if b.crc != nil {
		b.crc.Write(p[:n])
	}
	return err
}

// AddTerm appends the postings of one term.
func (b *Builder) AddTerm(entry index.TermEntry) error {
	if b.section != sectionPostings {
		return fmt.Errorf("term %s:%q added after postings section", entry.Field, entry.Term)
	}
	if n := len(b.dict); n > 0 && index.CompareKey(b.dict[n-1].Field, b.dict[n-1].Term, entry.Field, entry.Term) >= 0 {
		return fmt.Errorf("term %s:%q out of order", entry.Field, entry.Term)
	}
	data, err := json.Marshal(entry.Postings)
	if err != nil {
		return fmt.Errorf("marshaling postings for %s:%q: %w", entry.Field, entry.Term, err)
	}
	start := b.offset
	if err := b.write(data); err != nil {
		return fmt.Errorf("writing postings for %s:%q: %w", entry.Field, entry.Term, err)
	}
	b.dict = append(b.dict, DictEntry{
		Field:      entry.Field,
		Term:       entry.Term,
		PostOffset: start - b.header.PostOffset,
		PostLen:    len(data),
		DocFreq:    len(entry.Postings),
	})
	return nil
}

// AddDoc appends one stored document.
func (b *Builder) AddDoc(doc index.StoredDoc) error {
	if err := b.advance(sectionDocs); err != nil {
		return err
	}
	if b.count > 0 && doc.Doc <= b.lastDoc {
		return fmt.Errorf("stored document %d out of order", doc.Doc)
	}
	if err := b.element(doc); err != nil {
		return fmt.Errorf("writing stored document %d: %w", doc.Doc, err)
	}
	b.lastDoc = doc.Doc
	b.header.DocCount++
	b.header.MaxDoc = doc.Doc
	return nil
}

// AddNorm appends one norm entry.
func (b *Builder) AddNorm(n index.NormEntry) error {
	if err := b.advance(sectionNorms); err != nil {
		return err
	}
	if err := b.element(n); err != nil {
		return fmt.Errorf("writing norm %s/%d: %w", n.Field, n.Doc, err)
	}
	return nil
}

// element writes v as the next item of the open JSON array.
func (b *Builder) element(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if b.count > 0 {
		if err := b.write([]byte{','}); err != nil {
			return err
		}
	}
	b.count++
	return b.write(data)
}

// advance closes sections until next is the open one. The dictionary is
// written when the postings section ends.
func (b *Builder) advance(next section) error {
	if next < b.section {
		return fmt.Errorf("segment sections written out of order")
	}
	for b.section < next {
		switch b.section {
		case sectionPostings:
			b.header.PostSize = b.offset - b.header.PostOffset
			b.header.TermCount = uint32(len(b.dict))
			data, err := json.Marshal(b.dict)
			if err != nil {
				return fmt.Errorf("marshaling dictionary: %w", err)
			}
			b.header.DictOffset = b.offset
			if err := b.write(data); err != nil {
				return fmt.Errorf("writing dictionary: %w", err)
			}
			b.header.DictSize = int64(len(data))
			b.checksums = append(b.checksums, crc32.ChecksumIEEE(data))
			b.header.StoredOffset = b.offset
			if err := b.openArray(); err != nil {
				return err
			}
		case sectionDocs:
			if err := b.closeArray(); err != nil {
				return err
			}
			b.header.StoredSize = b.offset - b.header.StoredOffset
			b.header.NormsOffset = b.offset
			if err := b.openArray(); err != nil {
				return err
			}
		case sectionNorms:
			if err := b.closeArray(); err != nil {
				return err
			}
			b.header.NormsSize = b.offset - b.header.NormsOffset
		}
		b.section++
	}
	return nil
}

func (b *Builder) openArray() error {
	b.crc = crc32.NewIEEE()
	b.count = 0
	return b.write([]byte{'['})
}

func (b *Builder) closeArray() error {
	if err := b.write([]byte{']'}); err != nil {
		return err
	}
	b.checksums = append(b.checksums, b.crc.Sum32())
	b.crc = nil
	return nil
}

// Finish writes the footer and header, syncs, and renames the segment into
// place. A segment without stored documents is rejected.
func (b *Builder) Finish() (string, error) {
	if err := b.advance(sectionDone); err != nil {
		b.Abort()
		return "", err
	}
	if b.header.DocCount == 0 {
		b.Abort()
		return "", fmt.Errorf("cannot write empty segment")
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], b.checksums[0])
	binary.LittleEndian.PutUint32(footer[4:8], b.header.DocCount)
	binary.LittleEndian.PutUint32(footer[8:12], b.checksums[1])
	binary.LittleEndian.PutUint32(footer[12:16], b.checksums[2])
	binary.LittleEndian.PutUint64(footer[16:24], uint64(b.header.DictOffset))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(b.header.PostSize))
	if err := b.write(footer); err != nil {
		b.Abort()
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if err := b.buf.Flush(); err != nil {
		b.Abort()
		return "", fmt.Errorf("flushing segment file: %w", err)
	}
	if _, err := b.f.WriteAt(b.header.encode(), 0); err != nil {
		b.Abort()
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := b.f.Sync(); err != nil {
		b.Abort()
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := b.f.Close(); err != nil {
		os.Remove(b.f.Name())
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(b.f.Name(), b.finalPath); err != nil {
		os.Remove(b.f.Name())
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	b.w.nextGen++
	return b.name, nil
}

// Abort discards the partially written segment.
func (b *Builder) Abort() {
	b.f.Close()
	os.Remove(b.f.Name())
}
