package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/astparse"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

func TestParserPool_AcquireReleaseRoundTrips(t *testing.T) {
	pool := newParserPool(astparse.DefaultRegistry(), 2)

	p1, err := pool.acquire(context.Background())
	require.NoError(t, err)
	p2, err := pool.acquire(context.Background())
	require.NoError(t, err)

	pool.release(p1)
	pool.release(p2)

	p3, err := pool.acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, p3)
}

func TestParserPool_AcquireBlocksUntilContextCancelled(t *testing.T) {
	pool := newParserPool(astparse.DefaultRegistry(), 1)
	_, err := pool.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApplyParsingConfig_SetsDefaultAndPerLanguageTimeout(t *testing.T) {
	registry := astparse.DefaultRegistry()
	cfg := config.ParsingConfig{
		TimeoutMicros: 5_000_000,
		LanguageOverrides: map[string]config.LanguageTimeout{
			"python": {TimeoutMicros: 9_000_000},
		},
	}
	applyParsingConfig(registry, cfg)

	goCfg, ok := registry.GetByName("go")
	require.True(t, ok)
	assert.Equal(t, int64(5_000_000), goCfg.DefaultTimeoutMicros)

	pyCfg, ok := registry.GetByName("python")
	require.True(t, ok)
	assert.Equal(t, int64(9_000_000), pyCfg.DefaultTimeoutMicros)
}

func TestApplyParsingConfig_ZeroTimeoutLeavesRegistryUnchanged(t *testing.T) {
	registry := astparse.DefaultRegistry()
	before, _ := registry.GetByName("go")
	original := before.DefaultTimeoutMicros

	applyParsingConfig(registry, config.ParsingConfig{})

	after, _ := registry.GetByName("go")
	assert.Equal(t, original, after.DefaultTimeoutMicros)
}

func TestExtractChunk_SkipsFailingFileButKeepsAlignment(t *testing.T) {
	dir := t.TempDir()

	goodPath := filepath.Join(dir, "good.go")
	require.NoError(t, os.WriteFile(goodPath, []byte("package a\n\nfunc F() {}\n"), 0o644))
	missingPath := filepath.Join(dir, "missing.go")

	p := &Pipeline{
		workers:    2,
		parserPool: newParserPool(astparse.DefaultRegistry(), 2),
		extractor:  extract.NewExtractor(extract.DefaultOptions()),
		logger:     testLogger(),
	}

	files := []scannedFile{
		{FileRef: refFor(missingPath, "missing.go"), Language: "go"},
		{FileRef: refFor(goodPath, "good.go"), Language: "go"},
	}

	extractions, okFiles, err := p.extractChunk(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, extractions, 1)
	require.Len(t, okFiles, 1)
	assert.Equal(t, "good.go", okFiles[0].RelativePath)

	var names []string
	for _, o := range extractions[0].Objects {
		names = append(names, o.Name)
	}
	assert.Contains(t, names, "F")
}
