package index

// Posting records one document's occurrences of a term.
type Posting struct {
	Doc       uint32 `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

type PostingList []Posting

// TermEntry is a term of one field with its postings sorted by Doc.
type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// Less orders entries by field, then term. Segment dictionaries are sorted
// this way so lookups can binary search.
func (e TermEntry) Less(o TermEntry) bool {
	return CompareKey(e.Field, e.Term, o.Field, o.Term) < 0
}

// CompareKey compares two (field, term) pairs.
func CompareKey(fieldA, termA, fieldB, termB string) int {
	switch {
	case fieldA < fieldB:
		return -1
	case fieldA > fieldB:
		return 1
	case termA < termB:
		return -1
	case termA > termB:
		return 1
	default:
		return 0
	}
}

// StoredField is a field value kept verbatim for retrieval.
type StoredField struct {
	Name  string `json:"n"`
	Value string `json:"v"`
}

// StoredDoc holds every stored field of one document in submission order.
type StoredDoc struct {
	Doc    uint32        `json:"d"`
	Fields []StoredField `json:"f"`
}

// Get returns the first stored value for name.
func (s StoredDoc) Get(name string) (string, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// NormEntry is the normalization factor recorded for one field of one document.
type NormEntry struct {
	Field string  `json:"f"`
	Doc   uint32  `json:"d"`
	Value float32 `json:"v"`
}

// Snapshot is the flushed content of a memory index, ready to be written as
// one segment. Every slice is sorted.
type Snapshot struct {
	Terms []TermEntry
	Docs  []StoredDoc
	Norms []NormEntry
}

// Empty reports whether the snapshot holds no documents.
func (s Snapshot) Empty() bool {
	return len(s.Docs) == 0
}
