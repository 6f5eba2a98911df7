package mcp

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/retrieve"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// MockSearchProvider implements SearchProvider for testing.
type MockSearchProvider struct {
	SearchFn func(ctx context.Context, q retrieve.Query) ([]*retrieve.Result, error)
}

func (m *MockSearchProvider) Search(ctx context.Context, q retrieve.Query) ([]*retrieve.Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, q)
	}
	return []*retrieve.Result{}, nil
}

var _ SearchProvider = (*MockSearchProvider)(nil)

// MockEmbedder implements embed.Embedder for testing.
type MockEmbedder struct {
	DimensionsFn func() int
	ModelNameFn  func() string
	AvailableFn  func(ctx context.Context) bool
}

func (m *MockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, m.Dimensions()), nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = make([]float32, m.Dimensions())
	}
	return result, nil
}

func (m *MockEmbedder) Dimensions() int {
	if m.DimensionsFn != nil {
		return m.DimensionsFn()
	}
	return embed.DefaultDimensions
}

func (m *MockEmbedder) ModelName() string {
	if m.ModelNameFn != nil {
		return m.ModelNameFn()
	}
	return "embeddinggemma-300m"
}

func (m *MockEmbedder) Available(ctx context.Context) bool {
	if m.AvailableFn != nil {
		return m.AvailableFn(ctx)
	}
	return true
}

func (m *MockEmbedder) Close() error         { return nil }
func (m *MockEmbedder) SetBatchIndex(_ int)  {}
func (m *MockEmbedder) SetFinalBatch(_ bool) {}

var _ embed.Embedder = (*MockEmbedder)(nil)

// newTestMetadataStore opens a throwaway metadata store backed by a temp file.
func newTestMetadataStore(t *testing.T) *store.MetadataStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	ms, err := store.NewMetadataStore(path, store.DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })
	return ms
}

// newTestServer creates a server with mock dependencies for testing.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	search := &MockSearchProvider{}
	metadata := newTestMetadataStore(t)
	embedder := &MockEmbedder{}
	cfg := config.NewConfig()

	srv, err := NewServer(search, metadata, embedder, cfg, "")
	require.NoError(t, err)
	require.NotNil(t, srv)

	return srv
}

// =============================================================================
// TS01: Server Initialization
// =============================================================================

func TestServer_New_Success(t *testing.T) {
	search := &MockSearchProvider{}
	metadata := newTestMetadataStore(t)
	cfg := config.NewConfig()

	srv, err := NewServer(search, metadata, &MockEmbedder{}, cfg, "")

	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.NotNil(t, srv.MCPServer())
}

func TestServer_New_NilSearch_ReturnsError(t *testing.T) {
	metadata := newTestMetadataStore(t)
	cfg := config.NewConfig()

	srv, err := NewServer(nil, metadata, &MockEmbedder{}, cfg, "")

	require.Error(t, err)
	assert.Nil(t, srv)
	assert.Contains(t, err.Error(), "search")
}

func TestServer_New_NilMetadata_ReturnsError(t *testing.T) {
	search := &MockSearchProvider{}
	cfg := config.NewConfig()

	srv, err := NewServer(search, nil, &MockEmbedder{}, cfg, "")

	require.Error(t, err)
	assert.Nil(t, srv)
	assert.Contains(t, err.Error(), "metadata")
}

func TestServer_New_NilConfig_UsesDefaults(t *testing.T) {
	search := &MockSearchProvider{}
	metadata := newTestMetadataStore(t)

	srv, err := NewServer(search, metadata, &MockEmbedder{}, nil, "")

	require.NoError(t, err)
	require.NotNil(t, srv)
}

// =============================================================================
// TS02: Initialize Handshake
// =============================================================================

func TestServer_Info_ReturnsCorrectValues(t *testing.T) {
	srv := newTestServer(t)

	name, ver := srv.Info()

	assert.Equal(t, "AmanMCP", name)
	assert.NotEmpty(t, ver)
}

func TestServer_Capabilities_HasToolsAndResources(t *testing.T) {
	srv := newTestServer(t)

	hasTools, hasResources := srv.Capabilities()

	assert.True(t, hasTools, "tools capability should be enabled")
	assert.True(t, hasResources, "resources capability should be enabled")
}

// =============================================================================
// TS03: Tools List
// =============================================================================

func TestServer_ListTools_ReturnsRegisteredTools(t *testing.T) {
	srv := newTestServer(t)

	tools := srv.ListTools()

	assert.NotEmpty(t, tools)
	for _, tool := range tools {
		assert.NotEmpty(t, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
}

func TestServer_ListTools_SearchToolExists(t *testing.T) {
	srv := newTestServer(t)

	tools := srv.ListTools()

	var found bool
	for _, tool := range tools {
		if tool.Name == "search" {
			found = true
			break
		}
	}
	assert.True(t, found, "search tool should be registered")
}

// =============================================================================
// TS04: Tool Call Routing
// =============================================================================

func TestServer_CallTool_SearchRouting(t *testing.T) {
	search := &MockSearchProvider{
		SearchFn: func(ctx context.Context, q retrieve.Query) ([]*retrieve.Result, error) {
			return []*retrieve.Result{
				{RelativePath: "src/main.go", Content: "func main() {}", FinalScore: 0.95},
			}, nil
		},
	}
	metadata := newTestMetadataStore(t)
	cfg := config.NewConfig()
	srv, err := NewServer(search, metadata, &MockEmbedder{}, cfg, "")
	require.NoError(t, err)

	result, err := srv.CallTool(context.Background(), "search", map[string]any{
		"query": "main function",
	})

	require.NoError(t, err)
	require.NotNil(t, result)
}

// =============================================================================
// TS05: Unknown Tool
// =============================================================================

func TestServer_CallTool_UnknownTool_ReturnsError(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "nonexistent_tool", nil)

	require.Error(t, err)
	var mcpErr *MCPError
	if assert.ErrorAs(t, err, &mcpErr) {
		assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
	}
}

// =============================================================================
// TS06: Invalid Parameters
// =============================================================================

func TestServer_CallTool_InvalidParams_MissingQuery(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "search", map[string]any{})

	require.Error(t, err)
	var mcpErr *MCPError
	if assert.ErrorAs(t, err, &mcpErr) {
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
}

func TestServer_CallTool_InvalidParams_EmptyQuery(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "search", map[string]any{
		"query": "",
	})

	require.Error(t, err)
	var mcpErr *MCPError
	if assert.ErrorAs(t, err, &mcpErr) {
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
}

// =============================================================================
// TS07: Resources List
// =============================================================================

func TestServer_ListResources_ReturnsIndexedFiles(t *testing.T) {
	search := &MockSearchProvider{}
	metadata := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, metadata.AddCodeObjects(ctx, []*extract.CodeObject{
		{ID: "obj1", RelativePath: "src/main.go", Kind: extract.KindFunction, Name: "main", Language: "go", Source: "func main() {}"},
	}, nil))
	require.NoError(t, metadata.SetFileChecksum(ctx, &change.FileChecksum{
		RelativePath: "src/main.go",
		FileChecksum: "abc123",
		LastModified: time.Now(),
	}))

	cfg := config.NewConfig()
	srv, err := NewServer(search, metadata, &MockEmbedder{}, cfg, "")
	require.NoError(t, err)

	resources, cursor, err := srv.ListResources(ctx, "")

	require.NoError(t, err)
	assert.Empty(t, cursor) // No pagination for now
	assert.Len(t, resources, 1)

	for _, res := range resources {
		assert.NotEmpty(t, res.URI)
		assert.NotEmpty(t, res.Name)
	}
}

func TestServer_ListResources_Empty(t *testing.T) {
	srv := newTestServer(t)

	resources, _, err := srv.ListResources(context.Background(), "")

	require.NoError(t, err)
	assert.Empty(t, resources)
}

// =============================================================================
// TS08: Resource Read
// =============================================================================

func TestServer_ReadResource_ReturnsContent(t *testing.T) {
	search := &MockSearchProvider{}
	metadata := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, metadata.AddCodeObjects(ctx, []*extract.CodeObject{
		{ID: "obj1", RelativePath: "src/main.go", Kind: extract.KindFunction, Name: "main", Language: "go", Source: "package main\n\nfunc main() {}"},
	}, nil))

	cfg := config.NewConfig()
	srv, err := NewServer(search, metadata, &MockEmbedder{}, cfg, "")
	require.NoError(t, err)

	result, err := srv.ReadResource(ctx, "code://obj1")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.Content, "func main()")
}

func TestServer_ReadResource_NotFound(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.ReadResource(context.Background(), "code://nonexistent")

	require.Error(t, err)
}

// =============================================================================
// TS09: Graceful Shutdown
// =============================================================================

func TestServer_Close_ReleasesResources(t *testing.T) {
	srv := newTestServer(t)

	err := srv.Close()

	assert.NoError(t, err)
}

// =============================================================================
// TS10: Concurrent Requests
// =============================================================================

func TestServer_ConcurrentRequests_RaceSafe(t *testing.T) {
	callCount := 0
	var mu sync.Mutex

	search := &MockSearchProvider{
		SearchFn: func(ctx context.Context, q retrieve.Query) ([]*retrieve.Result, error) {
			mu.Lock()
			callCount++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond) // Simulate work
			return []*retrieve.Result{}, nil
		},
	}
	metadata := newTestMetadataStore(t)
	cfg := config.NewConfig()
	srv, err := NewServer(search, metadata, &MockEmbedder{}, cfg, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := srv.CallTool(context.Background(), "search", map[string]any{
				"query": "test query",
			})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 10, callCount)
}
