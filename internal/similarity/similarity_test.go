package similarity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/similarity"
)

func TestConstantNormIgnoresState(t *testing.T) {
	p := similarity.ConstantNorm{}
	states := []similarity.InvertState{
		{},
		{Length: 3, UniqueTerms: 3, MaxTermFrequency: 1},
		{Length: 3000, UniqueTerms: 900, MaxTermFrequency: 40, Boost: 2.5},
		{Length: 10, NumOverlap: 9},
	}
	for _, field := range document.AllFields() {
		for _, st := range states {
			require.Equal(t, float32(1.0), p.ComputeNorm(field, st))
		}
	}
	require.True(t, similarity.LengthInvariant(p, document.Text))
}

func TestDefaultNormShrinksWithLength(t *testing.T) {
	p := similarity.Default{}
	short := p.ComputeNorm(document.Text, similarity.InvertState{Length: 4})
	long := p.ComputeNorm(document.Text, similarity.InvertState{Length: 400})

	require.InDelta(t, 0.5, short, 1e-6)
	require.InDelta(t, 0.05, long, 1e-6)
	require.Greater(t, short, long)
	require.False(t, similarity.LengthInvariant(p, document.Text))
}

func TestDefaultNormDiscountsOverlapsAndBoost(t *testing.T) {
	p := similarity.Default{}
	require.InDelta(t, 0.5, p.ComputeNorm(document.Text, similarity.InvertState{Length: 6, NumOverlap: 2}), 1e-6)
	require.InDelta(t, 1.0, p.ComputeNorm(document.Text, similarity.InvertState{Length: 4, Boost: 2}), 1e-6)
	require.Zero(t, p.ComputeNorm(document.Text, similarity.InvertState{}))
}

func TestByName(t *testing.T) {
	p, ok := similarity.ByName("constant")
	require.True(t, ok)
	require.IsType(t, similarity.ConstantNorm{}, p)

	p, ok = similarity.ByName("default")
	require.True(t, ok)
	require.IsType(t, similarity.Default{}, p)

	_, ok = similarity.ByName("bm25")
	require.False(t, ok)
}

func TestPolicyFunc(t *testing.T) {
	var seen document.FieldName = -1
	p := similarity.PolicyFunc(func(f document.FieldName, s similarity.InvertState) float32 {
		seen = f
		return float32(s.UniqueTerms)
	})
	require.Equal(t, float32(7), p.ComputeNorm(document.ScreenName, similarity.InvertState{UniqueTerms: 7}))
	require.Equal(t, document.ScreenName, seen)
}
