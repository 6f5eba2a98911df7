package docchunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigChunker_ChunkYAML_SimpleDocument(t *testing.T) {
	chunker := NewConfigChunker(DefaultConfigOptions())

	content := []byte(`
server:
  host: localhost
  port: 8080
database:
  url: postgres://localhost/db
  pool_size: 10
`)
	nodes, err := chunker.ChunkYAML("config.yaml", content)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)

	for _, n := range nodes {
		assert.Equal(t, KindConfig, n.Kind)
		assert.Equal(t, "yaml", n.Format)
		assert.NotEmpty(t, n.FlattenedKeys)
	}
}

func TestConfigChunker_ChunkYAML_MultiDocument(t *testing.T) {
	chunker := NewConfigChunker(DefaultConfigOptions())

	content := []byte("a: 1\n---\nb: 2\n")
	nodes, err := chunker.ChunkYAML("multi.yaml", content)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestConfigChunker_ChunkJSON_NestedObject(t *testing.T) {
	chunker := NewConfigChunker(DefaultConfigOptions())

	content := []byte(`{"logging": {"level": "info", "format": "json"}, "feature_flags": {"beta": true}}`)
	nodes, err := chunker.ChunkJSON("settings.json", content)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.Equal(t, "json", n.Format)
	}
}

func TestConfigChunker_ChunkJSON_InvalidReturnsError(t *testing.T) {
	chunker := NewConfigChunker(DefaultConfigOptions())
	_, err := chunker.ChunkJSON("bad.json", []byte("{not valid"))
	assert.Error(t, err)
}

func TestConfigChunker_ChunkYAML_DeepNestingRecursesUntilMaxDepth(t *testing.T) {
	opts := ConfigOptions{TargetTokens: 1, MinTokens: 1, MaxTokens: 1000, MaxDepth: 3}
	chunker := NewConfigChunker(opts)

	content := []byte(`
root:
  level1:
    level2:
      level3:
        leaf: value
`)
	nodes, err := chunker.ChunkYAML("deep.yaml", content)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.LessOrEqual(t, n.NestingDepth, opts.MaxDepth+1)
	}
}

func TestConfigChunker_ChunkYAML_DetectsEnvReferences(t *testing.T) {
	chunker := NewConfigChunker(DefaultConfigOptions())

	content := []byte(`
service:
  api_key: ${API_KEY}
  host: $HOST_NAME
  legacy: %OLD_VAR%
`)
	nodes, err := chunker.ChunkYAML("env.yaml", content)
	require.NoError(t, err)

	var found []string
	for _, n := range nodes {
		found = append(found, n.EnvRefs...)
	}
	assert.Contains(t, found, "${API_KEY}")
	assert.Contains(t, found, "$HOST_NAME")
	assert.Contains(t, found, "%OLD_VAR%")
}

func TestConfigChunker_ChunkProperties_GroupsByFirstSegment(t *testing.T) {
	chunker := NewConfigChunker(DefaultConfigOptions())

	content := []byte(`# database settings
db.url=jdbc:postgresql://localhost/app
db.pool.size=10

# cache settings
cache.ttl=300
`)
	nodes, err := chunker.ChunkProperties("app.properties", content)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)

	containsAll := func(s string, subs ...string) bool {
		for _, sub := range subs {
			if !strings.Contains(s, sub) {
				return false
			}
		}
		return true
	}

	var foundDB, foundCache bool
	for _, n := range nodes {
		if containsAll(n.Content, "db.url", "db.pool.size", "database settings") {
			foundDB = true
		}
		if containsAll(n.Content, "cache.ttl", "cache settings") {
			foundCache = true
		}
	}
	assert.True(t, foundDB, "expected db.* keys grouped with their comment block")
	assert.True(t, foundCache, "expected cache.* keys grouped with their comment block")
}

func TestConfigChunker_Optimize_MergesSmallAdjacentChunks(t *testing.T) {
	opts := ConfigOptions{TargetTokens: 5, MinTokens: 50, MaxTokens: 1000, MaxDepth: 4}
	chunker := NewConfigChunker(opts)

	content := []byte(`
a: 1
b: 2
c: 3
d: 4
`)
	nodes, err := chunker.ChunkYAML("small.yaml", content)
	require.NoError(t, err)
	assert.Less(t, len(nodes), 4, "small sibling sections should merge together")
}
