package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/document"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/errors"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeCorpus(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `{"id":%d,"created_at":"Sun Oct 24 01:12:37 +0000 2010","text":"status number %d","user":{"screen_name":"user%d"}}`+"\n", i, i, i%3)
	}
	path := filepath.Join(t.TempDir(), "statuses.json")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestMissingFlagsPrintUsage(t *testing.T) {
	code, stdout, stderr := runCmd(t, "-input", "x.json")
	require.Equal(t, apperrors.ExitUsage, code)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "usage: indexstatuses")

	code, _, _ = runCmd(t, "-bogus")
	require.Equal(t, apperrors.ExitUsage, code)
}

func TestMissingInputIsReported(t *testing.T) {
	indexDir := filepath.Join(t.TempDir(), "index")
	code, _, stderr := runCmd(t, "-input", "/no/such/corpus.json", "-index", indexDir)
	require.Equal(t, apperrors.ExitUsage, code)
	require.Contains(t, stderr, "Error: /no/such/corpus.json does not exist!")

	_, err := os.Stat(indexDir)
	require.True(t, os.IsNotExist(err), "nothing is created before the input is validated")
}

func TestInvalidConfigExitsBeforeBuild(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("indexer:\n  similarity: bm25\n"), 0644))
	indexDir := filepath.Join(t.TempDir(), "index")

	code, _, stderr := runCmd(t, "-input", writeCorpus(t, 1), "-index", indexDir, "-config", cfgPath)
	require.Equal(t, apperrors.ExitUsage, code)
	require.Contains(t, stderr, "failed to load config")
	_, err := os.Stat(indexDir)
	require.True(t, os.IsNotExist(err))
}

func TestBuildLocalIndex(t *testing.T) {
	t.Setenv("SI_INDEXER_PROGRESS_EVERY", "2")
	indexDir := filepath.Join(t.TempDir(), "index")

	code, stdout, stderr := runCmd(t, "-input", writeCorpus(t, 5), "-index", indexDir)
	require.Equal(t, apperrors.ExitOK, code, stderr)
	require.Equal(t,
		"2 statuses indexed\n4 statuses indexed\nOptimizing index...\nTotal of 5 statuses indexed\n",
		stdout)

	e, err := indexer.Open(config.IndexerConfig{
		DataDir:                indexDir,
		SegmentMaxSize:         64 << 20,
		MaxSegmentsBeforeMerge: 10,
	})
	require.NoError(t, err)
	defer e.Close()
	require.Len(t, e.Segments(), 1)
	require.Equal(t, 5, e.DocCount())
	postings, err := e.Search(document.ScreenName, "user1")
	require.NoError(t, err)
	require.Len(t, postings, 2)
}

func TestLockedIndexFails(t *testing.T) {
	indexDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, indexer.LockFile), nil, 0644))

	code, stdout, stderr := runCmd(t, "-input", writeCorpus(t, 1), "-index", indexDir)
	require.Equal(t, apperrors.ExitFailure, code)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "locked")
}

func TestMalformedCorpusFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":1}\nnot json\n"), 0644))

	code, stdout, _ := runCmd(t, "-input", path, "-index", filepath.Join(t.TempDir(), "index"))
	require.Equal(t, apperrors.ExitFailure, code)
	require.NotContains(t, stdout, "Total of")
}

func TestParseKafkaInput(t *testing.T) {
	in, ok := parseKafkaInput("kafka://k1:9092,k2:9092/statuses")
	require.True(t, ok)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, in.brokers)
	require.Equal(t, "statuses", in.topic)

	in, ok = parseKafkaInput("kafka:///")
	require.True(t, ok)
	require.Empty(t, in.brokers)
	require.Empty(t, in.topic)

	_, ok = parseKafkaInput("/data/statuses.json")
	require.False(t, ok)
}
