package segment

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer/index"
)

// Merge combines readers into a single new segment written by w and returns
// its file name. Dictionaries, stored documents and norms are each walked as
// sorted runs and streamed to the new segment, so only one term's postings
// are held at a time. When two segments claim the same document the later
// reader wins. The input segments are left untouched; removing them is the
// caller's job.
func Merge(readers []*Reader, w *Writer) (string, error) {
	if len(readers) == 0 {
		return "", fmt.Errorf("nothing to merge")
	}
	b, err := w.Create()
	if err != nil {
		return "", err
	}
	if err := mergeTerms(readers, b); err != nil {
		b.Abort()
		return "", err
	}

	docs := make([][]index.StoredDoc, len(readers))
	norms := make([][]index.NormEntry, len(readers))
	for i, r := range readers {
		docs[i] = r.Docs()
		norms[i] = r.Norms()
	}
	err = mergeRuns(docs, func(a, b index.StoredDoc) int {
		return compareDoc(a.Doc, b.Doc)
	}, b.AddDoc)
	if err != nil {
		b.Abort()
		return "", err
	}
	err = mergeRuns(norms, func(a, b index.NormEntry) int {
		if a.Field != b.Field {
			if a.Field < b.Field {
				return -1
			}
			return 1
		}
		return compareDoc(a.Doc, b.Doc)
	}, b.AddNorm)
	if err != nil {
		b.Abort()
		return "", err
	}
	return b.Finish()
}

// mergeTerms walks every dictionary in (field, term) order. Postings of a
// term found in several segments are combined before it is written.
func mergeTerms(readers []*Reader, b *Builder) error {
	pos := make([]int, len(readers))
	for {
		var lowest *DictEntry
		for i, r := range readers {
			if pos[i] >= len(r.dict) {
				continue
			}
			e := &r.dict[pos[i]]
			if lowest == nil || index.CompareKey(e.Field, e.Term, lowest.Field, lowest.Term) < 0 {
				lowest = e
			}
		}
		if lowest == nil {
			return nil
		}
		field, term := lowest.Field, lowest.Term

		var postings index.PostingList
		for i, r := range readers {
			if pos[i] >= len(r.dict) {
				continue
			}
			e := r.dict[pos[i]]
			if e.Field != field || e.Term != term {
				continue
			}
			p, err := r.readPostings(e)
			if err != nil {
				return fmt.Errorf("reading %s:%q from segment %s: %w", field, term, r.Name(), err)
			}
			postings = append(postings, p...)
			pos[i]++
		}
		if err := b.AddTerm(index.TermEntry{Field: field, Term: term, Postings: lastPerDoc(postings)}); err != nil {
			return err
		}
	}
}

// lastPerDoc sorts postings by document, keeping the last posting seen for a
// document that appears more than once.
func lastPerDoc(postings index.PostingList) index.PostingList {
	sort.SliceStable(postings, func(i, j int) bool { return postings[i].Doc < postings[j].Doc })
	out := postings[:0]
	for _, p := range postings {
		if n := len(out); n > 0 && out[n-1].Doc == p.Doc {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// mergeRuns emits the union of sorted runs in order. Equal keys are emitted
// once, with the value from the last run holding them.
func mergeRuns[T any](runs [][]T, cmp func(a, b T) int, emit func(T) error) error {
	pos := make([]int, len(runs))
	for {
		best := -1
		for i, run := range runs {
			if pos[i] < len(run) && (best < 0 || cmp(run[pos[i]], runs[best][pos[best]]) < 0) {
				best = i
			}
		}
		if best < 0 {
			return nil
		}
		key := runs[best][pos[best]]
		winner := key
		for i, run := range runs {
			if pos[i] < len(run) && cmp(run[pos[i]], key) == 0 {
				winner = run[pos[i]]
				pos[i]++
			}
		}
		if err := emit(winner); err != nil {
			return err
		}
	}
}

func compareDoc(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
