// Package similarity holds the index-time scoring strategies a backend
// consults when it records a field's normalization factor.
//
// At indexing time the backend accumulates an InvertState for every analyzed
// field of a document and asks the installed Policy for a norm. The norm is
// written into the index next to the postings and later multiplied into
// relevance scores, so the choice of Policy is fixed for the life of an index.
package similarity

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
)

// InvertState is what the backend knows about one field of one document
// after analysis.
type InvertState struct {
	// Length is the number of tokens produced.
	Length int
	// NumOverlap counts tokens that share a position with the previous one.
	NumOverlap int
	// UniqueTerms is the number of distinct terms.
	UniqueTerms int
	// MaxTermFrequency is the highest frequency of any single term.
	MaxTermFrequency int
	// Boost is the index-time field boost; zero means 1.
	Boost float32
}

func (s InvertState) boost() float32 {
	if s.Boost == 0 {
		return 1
	}
	return s.Boost
}

// Policy computes the normalization factor stored for a field.
type Policy interface {
	ComputeNorm(field document.FieldName, state InvertState) float32
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(field document.FieldName, state InvertState) float32

func (f PolicyFunc) ComputeNorm(field document.FieldName, state InvertState) float32 {
	return f(field, state)
}

// Default is the classic length normalization: boost / sqrt(numTerms), where
// overlapping tokens are not counted.
type Default struct{}

func (Default) ComputeNorm(_ document.FieldName, state InvertState) float32 {
	numTerms := state.Length - state.NumOverlap
	if numTerms <= 0 {
		return 0
	}
	return state.boost() * float32(1.0/math.Sqrt(float64(numTerms)))
}

// ConstantNorm disables length normalization: every field of every document
// gets the same factor, so short and long posts are scored alike.
type ConstantNorm struct{}

func (ConstantNorm) ComputeNorm(document.FieldName, InvertState) float32 {
	return 1.0
}

// ByName returns the policy registered under name ("constant" or "default").
func ByName(name string) (Policy, bool) {
	switch name {
	case "constant":
		return ConstantNorm{}, true
	case "default":
		return Default{}, true
	default:
		return nil, false
	}
}

var probeLengths = []int{1, 3, 17, 256, 3000}

// LengthInvariant reports whether p returns the same norm for field no
// matter how long it is. Backends that cannot call a Policy at write time use
// this to decide whether to keep norms at all.
func LengthInvariant(p Policy, field document.FieldName) bool {
	first := p.ComputeNorm(field, InvertState{Length: probeLengths[0], UniqueTerms: probeLengths[0], MaxTermFrequency: 1})
	for _, n := range probeLengths[1:] {
		if p.ComputeNorm(field, InvertState{Length: n, UniqueTerms: n, MaxTermFrequency: 1}) != first {
			return false
		}
	}
	return true
}
