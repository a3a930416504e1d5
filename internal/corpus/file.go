package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
)

// Stream is a status.Stream that holds files open until closed.
type Stream interface {
	status.Stream
	io.Closer
}

// FileStream reads one JSON-lines file. Files ending in .gz are decompressed
// on the fly. Blank lines are skipped.
type FileStream struct {
	path   string
	file   *os.File
	gz     *gzip.Reader
	reader *bufio.Reader
	line   int
}

func OpenFile(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	s := &FileStream{path: path, file: f}
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		s.gz = gz
		r = gz
	}
	s.reader = bufio.NewReaderSize(r, 64<<10)
	return s, nil
}

func (s *FileStream) Next(ctx context.Context) (status.Status, error) {
	for {
		if err := ctx.Err(); err != nil {
			return status.Status{}, err
		}
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			s.line++
			if !blank(line) {
				st, derr := Decode(line)
				if derr != nil {
					return status.Status{}, fmt.Errorf("%s:%d: %w", s.path, s.line, derr)
				}
				return st, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return status.Status{}, io.EOF
		}
		if err != nil {
			return status.Status{}, fmt.Errorf("reading %s: %w", s.path, err)
		}
	}
}

func (s *FileStream) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.file.Close()
}

// DirStream reads every corpus file under a directory, recursively, in
// lexical path order. Files are opened one at a time.
type DirStream struct {
	files   []string
	next    int
	current *FileStream
}

// IsCorpusFile reports whether name looks like a corpus file.
func IsCorpusFile(name string) bool {
	for _, ext := range []string{".json", ".json.gz", ".jsonl", ".jsonl.gz"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func OpenDir(dir string) (*DirStream, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsCorpusFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing corpus directory %s: %w", dir, err)
	}
	sort.Strings(files)
	return &DirStream{files: files}, nil
}

// Files lists the corpus files in read order.
func (d *DirStream) Files() []string {
	return d.files
}

func (d *DirStream) Next(ctx context.Context) (status.Status, error) {
	for {
		if d.current == nil {
			if d.next >= len(d.files) {
				return status.Status{}, io.EOF
			}
			f, err := OpenFile(d.files[d.next])
			if err != nil {
				return status.Status{}, err
			}
			d.next++
			d.current = f
		}
		st, err := d.current.Next(ctx)
		if errors.Is(err, io.EOF) {
			if cerr := d.current.Close(); cerr != nil {
				return status.Status{}, fmt.Errorf("closing %s: %w", d.current.path, cerr)
			}
			d.current = nil
			continue
		}
		return st, err
	}
}

func (d *DirStream) Close() error {
	if d.current == nil {
		return nil
	}
	err := d.current.Close()
	d.current = nil
	return err
}

// Open returns a DirStream for directories and a FileStream otherwise. A
// missing path yields an error matching fs.ErrNotExist.
func Open(path string) (Stream, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	if info.IsDir() {
		return OpenDir(path)
	}
	return OpenFile(path)
}
