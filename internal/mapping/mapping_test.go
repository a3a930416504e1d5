package mapping_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/mapping"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/status"
)

func TestToDocumentFieldTable(t *testing.T) {
	doc := mapping.ToDocument(status.Status{
		ID:         28965792812892160,
		ScreenName: "jack",
		CreatedAt:  "Sun Jan 23 00:00:00 +0000 2011",
		Text:       "just setting up my twttr",
	})

	require.Len(t, doc.Fields, 4)
	want := []document.Field{
		{Name: document.ID, Value: "28965792812892160", Stored: true, Treatment: document.NotAnalyzedNoNorms},
		{Name: document.ScreenName, Value: "jack", Stored: true, Treatment: document.NotAnalyzedNoNorms},
		{Name: document.CreatedAt, Value: "Sun Jan 23 00:00:00 +0000 2011", Stored: true, Treatment: document.NotIndexed},
		{Name: document.Text, Value: "just setting up my twttr", Stored: true, Treatment: document.Analyzed},
	}
	require.Equal(t, want, doc.Fields)
	require.NoError(t, doc.Validate())

	names := make([]string, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		names = append(names, f.Name.String())
	}
	require.Equal(t, []string{"id", "screen_name", "create_at", "text"}, names)
}

func TestIDIsPlainDecimal(t *testing.T) {
	tests := []struct {
		id   int64
		want string
	}{
		{id: 42, want: "42"},
		{id: 0, want: "0"},
		{id: 1234567, want: "1234567"},
		{id: -7, want: "-7"},
		{id: math.MaxInt64, want: "9223372036854775807"},
	}
	for _, tt := range tests {
		f, ok := mapping.ToDocument(status.Status{ID: tt.id}).Get(document.ID)
		require.True(t, ok)
		require.Equal(t, tt.want, f.Value)
	}
}

func TestValuesPassThroughUnmodified(t *testing.T) {
	s := status.Status{ID: 1, ScreenName: "  MiXeD ", CreatedAt: "", Text: "\tHÉLLO  wörld \n"}
	doc := mapping.ToDocument(s)

	sn, _ := doc.Get(document.ScreenName)
	require.Equal(t, "  MiXeD ", sn.Value)
	ca, _ := doc.Get(document.CreatedAt)
	require.Equal(t, "", ca.Value)
	txt, _ := doc.Get(document.Text)
	require.Equal(t, "\tHÉLLO  wörld \n", txt.Value)
}

func TestTableIsComplete(t *testing.T) {
	for _, name := range document.AllFields() {
		rule := mapping.RuleFor(name)
		require.NotNil(t, rule.Value, "no rule for %s", name)
		require.True(t, rule.Stored, "%s must be stored", name)
		require.NotZero(t, rule.Treatment, "no treatment for %s", name)
	}
}

func BenchmarkToDocument(b *testing.B) {
	s := status.Status{ID: 28965792812892160, ScreenName: "jack", CreatedAt: "Sun Jan 23 00:00:00 +0000 2011", Text: "just setting up my twttr"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = mapping.ToDocument(s)
	}
}
