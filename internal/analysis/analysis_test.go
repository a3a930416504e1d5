package analysis_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/analysis"
)

func TestSimpleTokenize(t *testing.T) {
	tokens := analysis.Simple{}.Tokenize("Hello, World! r2d2 RT @Jack #GoLang")
	require.Equal(t, []string{"hello", "world", "r", "d", "rt", "jack", "golang"}, analysis.Terms(tokens))
	for i, tok := range tokens {
		require.Equal(t, i, tok.Position)
	}
}

func TestSimpleTokenizeUnicodeAndEmpty(t *testing.T) {
	require.Equal(t, []string{"straße", "ünïcode"}, analysis.Terms(analysis.Simple{}.Tokenize("STRAßE ÜNÏCODE")))
	require.Empty(t, analysis.Simple{}.Tokenize(""))
	require.Empty(t, analysis.Simple{}.Tokenize("12345 !!! ..."))
}

func TestEnglishTokenize(t *testing.T) {
	tokens := analysis.English{}.Tokenize("The runners were running quickly")
	require.Equal(t, []string{"runner", "runn", "quick"}, analysis.Terms(tokens))
	require.Equal(t, 2, tokens[2].Position)
}

func TestEnglishDropsShortWordsAndStopWords(t *testing.T) {
	tokens := analysis.English{}.Tokenize("RT a b of via 2011 x")
	require.Equal(t, []string{"2011"}, analysis.Terms(tokens))
}

func TestByName(t *testing.T) {
	a, ok := analysis.ByName("simple")
	require.True(t, ok)
	require.Equal(t, "simple", a.Name())

	a, ok = analysis.ByName("english")
	require.True(t, ok)
	require.Equal(t, "english", a.Name())

	_, ok = analysis.ByName("standard")
	require.False(t, ok)
}

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Distributed search engines process queries across multiple shards to achieve
        horizontal scalability. Each shard maintains its own inverted index and responds
        to queries independently.`,
	"long": strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. These systems combine tokenization, stemming, and stop word
        removal to normalize text into searchable terms. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	analyzers := []analysis.Analyzer{analysis.Simple{}, analysis.English{}}
	for _, a := range analyzers {
		for name, text := range sampleTexts {
			b.Run(a.Name()+"/"+name, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					_ = a.Tokenize(text)
				}
			})
		}
	}
}
