// Package mapping turns a status into the document that gets indexed. The
// field table is fixed: every status yields the same four fields in the same
// order with the same treatments.
package mapping

import (
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
)

// Rule describes how one field is derived from a status.
type Rule struct {
	Stored    bool
	Treatment document.Treatment
	Value     func(status.Status) string
}

// table is indexed by field name so a missing entry leaves a zero Rule,
// which TestTableIsComplete rejects.
var table = [document.NumFields]Rule{
	document.ID: {
		Stored:    true,
		Treatment: document.NotAnalyzedNoNorms,
		Value:     func(s status.Status) string { return strconv.FormatInt(s.ID, 10) },
	},
	document.ScreenName: {
		Stored:    true,
		Treatment: document.NotAnalyzedNoNorms,
		Value:     func(s status.Status) string { return s.ScreenName },
	},
	document.CreatedAt: {
		Stored:    true,
		Treatment: document.NotIndexed,
		Value:     func(s status.Status) string { return s.CreatedAt },
	},
	document.Text: {
		Stored:    true,
		Treatment: document.Analyzed,
		Value:     func(s status.Status) string { return s.Text },
	},
}

// RuleFor returns the mapping rule for a field.
func RuleFor(name document.FieldName) Rule {
	return table[name]
}

// ToDocument maps a status to its indexable document. Values pass through
// untouched; analysis is the backend's job.
func ToDocument(s status.Status) document.Document {
	fields := make([]document.Field, 0, document.NumFields)
	for name, rule := range table {
		fields = append(fields, document.Field{
			Name:      document.FieldName(name),
			Value:     rule.Value(s),
			Stored:    rule.Stored,
			Treatment: rule.Treatment,
		})
	}
	return document.Document{Fields: fields}
}
