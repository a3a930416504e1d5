// Package document models the indexable unit handed to an index backend: an
// ordered list of named fields, each carrying its own storage and indexing
// directives.
package document

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
)

// FieldName is the closed vocabulary of fields a status document may carry.
type FieldName int

const (
	ID FieldName = iota
	ScreenName
	CreatedAt
	Text

	// NumFields is the size of the vocabulary. Tables indexed by FieldName
	// are declared with this length.
	NumFields
)

var fieldNames = [NumFields]string{
	ID:         "id",
	ScreenName: "screen_name",
	CreatedAt:  "create_at",
	Text:       "text",
}

// String returns the on-index name of the field.
func (f FieldName) String() string {
	if !f.Valid() {
		return fmt.Sprintf("FieldName(%d)", int(f))
	}
	return fieldNames[f]
}

// Valid reports whether f is part of the vocabulary.
func (f FieldName) Valid() bool {
	return f >= 0 && f < NumFields
}

// ParseFieldName maps an on-index name back to its FieldName.
func ParseFieldName(name string) (FieldName, bool) {
	for i, n := range fieldNames {
		if n == name {
			return FieldName(i), true
		}
	}
	return 0, false
}

// AllFields returns the vocabulary in declaration order.
func AllFields() []FieldName {
	out := make([]FieldName, 0, NumFields)
	for f := FieldName(0); f < NumFields; f++ {
		out = append(out, f)
	}
	return out
}

// Treatment says how a field's value is indexed.
type Treatment int

const (
	// NotAnalyzedNoNorms indexes the whole value as one exact-match term and
	// records no normalization factor.
	NotAnalyzedNoNorms Treatment = iota + 1
	// NotIndexed keeps the value out of the inverted index; it can only be stored.
	NotIndexed
	// Analyzed tokenizes the value for full-text search and records a norm.
	Analyzed
)

func (t Treatment) String() string {
	switch t {
	case NotAnalyzedNoNorms:
		return "not_analyzed_no_norms"
	case NotIndexed:
		return "not_indexed"
	case Analyzed:
		return "analyzed"
	default:
		return fmt.Sprintf("Treatment(%d)", int(t))
	}
}

func (t Treatment) Indexed() bool   { return t == NotAnalyzedNoNorms || t == Analyzed }
func (t Treatment) Tokenized() bool { return t == Analyzed }
func (t Treatment) OmitNorms() bool { return t != Analyzed }

// Field is one named value inside a Document.
type Field struct {
	Name      FieldName
	Value     string
	Stored    bool
	Treatment Treatment
}

// Validate rejects fields a backend cannot represent.
func (f Field) Validate() error {
	if !f.Name.Valid() {
		return apperrors.Newf(apperrors.ErrInvalidField, apperrors.ExitFailure, "unknown field %s", f.Name)
	}
	switch f.Treatment {
	case NotAnalyzedNoNorms, Analyzed:
	case NotIndexed:
		if !f.Stored {
			return apperrors.Newf(apperrors.ErrInvalidField, apperrors.ExitFailure,
				"field %s is neither stored nor indexed", f.Name)
		}
	default:
		return apperrors.Newf(apperrors.ErrInvalidField, apperrors.ExitFailure,
			"field %s has unknown treatment %s", f.Name, f.Treatment)
	}
	return nil
}

// Document is an ordered set of fields. It is built once, submitted, and
// not touched again.
type Document struct {
	Fields []Field
}

// Get returns the first field with the given name.
func (d Document) Get(name FieldName) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks every field and rejects documents without any.
func (d Document) Validate() error {
	if len(d.Fields) == 0 {
		return apperrors.New(apperrors.ErrInvalidField, apperrors.ExitFailure, "document has no fields")
	}
	for _, f := range d.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}
