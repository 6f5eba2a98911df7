package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/pipeline"
)

// Collection is the single abstract collection per project spec.md §4.7
// describes: one dense vector space (named "dense", COSINE), one sparse
// vector space (named "sparse", live IDF modifier), and the metadata/state
// store, unified behind change.Store and pipeline.Store so C5/C6 can run
// against it directly, plus the typed reads and hybrid_search primitive C9
// needs.
type Collection struct {
	mu       sync.RWMutex
	metadata *MetadataStore
	dense    *HNSWStore
	sparse   *SparseStore
	lock     *embed.FileLock

	dataDir string

	// encodeCodeSparse/encodeDocSparse produce the BM25F (indices, values)
	// vector for an entity. Wired by the caller once internal/bm25f exists;
	// nil means the sparse leg is simply empty for new writes (dense-only
	// until an encoder is configured).
	encodeCodeSparse func(*extract.CodeObject) SparseVector
	encodeDocSparse  func(*docchunk.DocumentNode) SparseVector
}

var (
	_ change.Store   = (*Collection)(nil)
	_ pipeline.Store = (*Collection)(nil)
)

// CollectionConfig configures a Collection's on-disk layout and vector
// dimension.
type CollectionConfig struct {
	DataDir    string
	Dimensions int
}

// OpenCollection opens (creating if absent) the metadata, dense, and
// sparse stores under cfg.DataDir, guarded by a single-writer file lock
// (spec.md §4.6 "single-writer lock guarding the vector-store collection
// during a run").
func OpenCollection(cfg CollectionConfig) (*Collection, error) {
	lock := embed.NewFileLock(cfg.DataDir)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire collection lock: %w", err)
	}

	metadataPath := filepath.Join(cfg.DataDir, "metadata.db")
	metadata, err := NewMetadataStore(metadataPath, DefaultBM25Config())
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	dense, err := NewHNSWStore(DefaultVectorStoreConfig(cfg.Dimensions))
	if err != nil {
		_ = metadata.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("open dense store: %w", err)
	}
	densePath := filepath.Join(cfg.DataDir, "dense.hnsw")
	if fileExists(densePath) {
		if err := dense.Load(densePath); err != nil {
			_ = metadata.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("load dense store: %w", err)
		}
	}

	sparse := NewSparseStore()
	sparsePath := filepath.Join(cfg.DataDir, "sparse.gob")
	if err := sparse.Load(sparsePath); err != nil {
		_ = metadata.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("load sparse store: %w", err)
	}

	return &Collection{
		metadata: metadata,
		dense:    dense,
		sparse:   sparse,
		lock:     lock,
		dataDir:  cfg.DataDir,
	}, nil
}

// Metadata returns the underlying metadata store, for callers (the MCP
// server) that need the concrete *MetadataStore rather than the narrower
// Store interface.
func (c *Collection) Metadata() *MetadataStore {
	return c.metadata
}

// SetSparseEncoders wires the BM25F encoder functions used to derive the
// sparse leg from newly written entities. Safe to call at any point before
// the first AddCodeObjects/AddDocuments call that should carry a sparse
// vector.
func (c *Collection) SetSparseEncoders(code func(*extract.CodeObject) SparseVector, doc func(*docchunk.DocumentNode) SparseVector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encodeCodeSparse = code
	c.encodeDocSparse = doc
}

// Save flushes the dense and sparse indexes to disk. The metadata store
// (SQLite/WAL) is durable on every write; only the in-memory dense/sparse
// indexes need an explicit flush.
func (c *Collection) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.dense.Save(filepath.Join(c.dataDir, "dense.hnsw")); err != nil {
		return fmt.Errorf("save dense store: %w", err)
	}
	if err := c.sparse.Save(filepath.Join(c.dataDir, "sparse.gob")); err != nil {
		return fmt.Errorf("save sparse store: %w", err)
	}
	return nil
}

// Close releases every underlying resource and the single-writer lock.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(c.dense.Close())
	record(c.sparse.Close())
	record(c.metadata.Close())
	record(c.lock.Unlock())
	return firstErr
}

// --- change.Store / pipeline.Store: file checksum cache ---

func (c *Collection) GetFileChecksum(ctx context.Context, relativePath string) (*change.FileChecksum, error) {
	return c.metadata.GetFileChecksum(ctx, relativePath)
}

func (c *Collection) GetFileChecksumsBatch(ctx context.Context, relativePaths []string) (map[string]*change.FileChecksum, error) {
	return c.metadata.GetFileChecksumsBatch(ctx, relativePaths)
}

func (c *Collection) SetFileChecksum(ctx context.Context, fc *change.FileChecksum) error {
	return c.metadata.SetFileChecksum(ctx, fc)
}

// --- pipeline.Store: writes ---

// AddCodeObjects persists objects and relationships, and mirrors every
// object carrying an embedding into the dense index (and the sparse index,
// once an encoder is wired).
func (c *Collection) AddCodeObjects(ctx context.Context, objects []*extract.CodeObject, relationships []*extract.Relationship) error {
	if err := c.metadata.AddCodeObjects(ctx, objects, relationships); err != nil {
		return err
	}

	c.mu.RLock()
	encoder := c.encodeCodeSparse
	c.mu.RUnlock()

	var denseIDs []string
	var denseVecs [][]float32
	var sparseIDs []string
	var sparseVecs []SparseVector
	for _, o := range objects {
		if len(o.Embedding) > 0 {
			denseIDs = append(denseIDs, o.ID)
			denseVecs = append(denseVecs, o.Embedding)
		}
		if encoder != nil {
			sparseIDs = append(sparseIDs, o.ID)
			sparseVecs = append(sparseVecs, encoder(o))
		}
	}
	if len(denseIDs) > 0 {
		if err := c.dense.Add(ctx, denseIDs, denseVecs); err != nil {
			return fmt.Errorf("add dense vectors: %w", err)
		}
	}
	if len(sparseIDs) > 0 {
		if err := c.sparse.Add(ctx, sparseIDs, sparseVecs); err != nil {
			return fmt.Errorf("add sparse vectors: %w", err)
		}
	}
	return nil
}

// AddDocuments persists document nodes, mirroring embeddings into the
// dense (and, once wired, sparse) index the same way AddCodeObjects does.
func (c *Collection) AddDocuments(ctx context.Context, docs []*docchunk.DocumentNode) error {
	if err := c.metadata.AddDocuments(ctx, docs); err != nil {
		return err
	}

	c.mu.RLock()
	encoder := c.encodeDocSparse
	c.mu.RUnlock()

	var denseIDs []string
	var denseVecs [][]float32
	var sparseIDs []string
	var sparseVecs []SparseVector
	for _, d := range docs {
		if len(d.Embedding) > 0 {
			denseIDs = append(denseIDs, d.ID)
			denseVecs = append(denseVecs, d.Embedding)
		}
		if encoder != nil {
			sparseIDs = append(sparseIDs, d.ID)
			sparseVecs = append(sparseVecs, encoder(d))
		}
	}
	if len(denseIDs) > 0 {
		if err := c.dense.Add(ctx, denseIDs, denseVecs); err != nil {
			return fmt.Errorf("add dense vectors: %w", err)
		}
	}
	if len(sparseIDs) > 0 {
		if err := c.sparse.Add(ctx, sparseIDs, sparseVecs); err != nil {
			return fmt.Errorf("add sparse vectors: %w", err)
		}
	}
	return nil
}

// DeleteByFile removes every entity rooted at relativePath from the
// metadata store and evicts the same ids from the dense and sparse
// indexes.
func (c *Collection) DeleteByFile(ctx context.Context, relativePath string) (int, error) {
	ids, err := c.metadata.GetIDsByFile(ctx, relativePath)
	if err != nil {
		return 0, err
	}

	count, err := c.metadata.DeleteByFile(ctx, relativePath)
	if err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		if err := c.dense.Delete(ctx, ids); err != nil {
			return count, fmt.Errorf("evict dense vectors: %w", err)
		}
		if err := c.sparse.Delete(ctx, ids); err != nil {
			return count, fmt.Errorf("evict sparse vectors: %w", err)
		}
	}
	return count, nil
}

// Delete removes specific ids from the metadata, dense, and sparse stores.
func (c *Collection) Delete(ctx context.Context, ids []string) error {
	if err := c.metadata.Delete(ctx, ids); err != nil {
		return err
	}
	if err := c.dense.Delete(ctx, ids); err != nil {
		return fmt.Errorf("evict dense vectors: %w", err)
	}
	if err := c.sparse.Delete(ctx, ids); err != nil {
		return fmt.Errorf("evict sparse vectors: %w", err)
	}
	return nil
}

// --- pipeline.Store: typed reads the pipeline itself needs ---

func (c *Collection) GetCodeObjectsBatch(ctx context.Context, ids []string, withVectors bool) (map[string]*extract.CodeObject, error) {
	return c.metadata.GetCodeObjectsBatch(ctx, ids, withVectors)
}

func (c *Collection) GetIndexState(ctx context.Context) (*pipeline.IndexState, error) {
	return c.metadata.GetIndexState(ctx)
}

func (c *Collection) UpdateIndexState(ctx context.Context, state *pipeline.IndexState) error {
	return c.metadata.UpdateIndexState(ctx, state)
}

// --- spec.md §4.7 typed reads beyond what the pipeline itself needs ---

func (c *Collection) GetCodeObject(ctx context.Context, id string) (*extract.CodeObject, error) {
	return c.metadata.GetCodeObject(ctx, id)
}

func (c *Collection) GetCodeObjectsByFile(ctx context.Context, relativePath string) ([]*extract.CodeObject, error) {
	return c.metadata.GetCodeObjectsByFile(ctx, relativePath)
}

func (c *Collection) GetDocument(ctx context.Context, id string) (*docchunk.DocumentNode, error) {
	return c.metadata.GetDocument(ctx, id)
}

func (c *Collection) GetDocumentsBatch(ctx context.Context, ids []string) (map[string]*docchunk.DocumentNode, error) {
	return c.metadata.GetDocumentsBatch(ctx, ids)
}

func (c *Collection) GetAllDocuments(ctx context.Context, limit int) ([]*docchunk.DocumentNode, error) {
	return c.metadata.GetAllDocuments(ctx, limit)
}

func (c *Collection) GetIndexedFilePaths(ctx context.Context) (map[string]struct{}, error) {
	return c.metadata.GetIndexedFilePaths(ctx)
}

func (c *Collection) GetRelationships(ctx context.Context, sourceID string, relType extract.RelationType) ([]*extract.Relationship, error) {
	return c.metadata.GetRelationships(ctx, sourceID, relType)
}

func (c *Collection) GetStatistics(ctx context.Context) (*StoreStatistics, error) {
	return c.metadata.GetStatistics(ctx)
}

func (c *Collection) GetState(ctx context.Context, key string) ([]byte, error) {
	return c.metadata.GetState(ctx, key)
}

func (c *Collection) SetState(ctx context.Context, key string, value []byte) error {
	return c.metadata.SetState(ctx, key, value)
}

// --- spec.md §4.7 hybrid search primitive ---

// HybridSearchParams configures one hybrid_search call. Zero values fall
// back to spec defaults (prefetch ratios 7.0/3.0, RRF fusion, k=60).
type HybridSearchParams struct {
	Limit               int
	PrefetchRatioDense  float64
	PrefetchRatioSparse float64
	FusionMethod        string // "rrf" (default) or "dbsf"
	RRFConstant         int

	TypeFilter     string // "code" or "document", empty means no filter
	LanguageFilter string
	FileFilter     string
}

// ScoredPoint is one hybrid_search result (spec.md §4.7).
type ScoredPoint struct {
	ID    string
	Type  string
	Score float64
}

// HybridSearch runs the dense and sparse prefetch legs, fuses them, and
// truncates to limit. Type/language/file filters are applied after fusion
// by consulting the metadata store, matching the teacher's post-fusion
// filtering shape in internal/search (filters narrow ranked results rather
// than the ANN search itself).
func (c *Collection) HybridSearch(ctx context.Context, denseVec []float32, sparseVec SparseVector, params HybridSearchParams) ([]*ScoredPoint, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	ratioDense := params.PrefetchRatioDense
	if ratioDense <= 0 {
		ratioDense = 7.0
	}
	ratioSparse := params.PrefetchRatioSparse
	if ratioSparse <= 0 {
		ratioSparse = 3.0
	}
	k := params.RRFConstant
	if k <= 0 {
		k = 60
	}

	prefetchDense := int(math.Ceil(float64(limit) * ratioDense))
	prefetchSparse := int(math.Ceil(float64(limit) * ratioSparse))

	var denseResults []*VectorResult
	if len(denseVec) > 0 {
		var err error
		denseResults, err = c.dense.Search(ctx, denseVec, prefetchDense)
		if err != nil {
			return nil, fmt.Errorf("dense search: %w", err)
		}
	}

	var sparseResults []*SparseResult
	if len(sparseVec.Indices) > 0 {
		var err error
		sparseResults, err = c.sparse.Search(ctx, sparseVec, prefetchSparse)
		if err != nil {
			return nil, fmt.Errorf("sparse search: %w", err)
		}
	}

	var fused []*ScoredPoint
	switch params.FusionMethod {
	case "dbsf":
		fused = fuseDBSF(denseResults, sparseResults)
	default:
		fused = fuseRRF(denseResults, sparseResults, k)
	}

	if params.TypeFilter != "" || params.LanguageFilter != "" || params.FileFilter != "" {
		filtered := make([]*ScoredPoint, 0, len(fused))
		for _, p := range fused {
			entityType, language, relativePath, ok := c.entityMeta(ctx, p.ID)
			if !ok {
				continue
			}
			p.Type = entityType
			if params.TypeFilter != "" && entityType != params.TypeFilter {
				continue
			}
			if params.LanguageFilter != "" && language != params.LanguageFilter {
				continue
			}
			if params.FileFilter != "" && relativePath != params.FileFilter {
				continue
			}
			filtered = append(filtered, p)
			if len(filtered) >= limit {
				break
			}
		}
		return filtered, nil
	}

	for _, p := range fused {
		entityType, _, _, _ := c.entityMeta(ctx, p.ID)
		p.Type = entityType
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// entityMeta resolves an id's type/language/path by probing the code
// object table first, then the document table. Returns ok=false if the id
// is absent from both (stale ANN entry).
func (c *Collection) entityMeta(ctx context.Context, id string) (entityType, language, relativePath string, ok bool) {
	obj, err := c.metadata.GetCodeObject(ctx, id)
	if err == nil && obj != nil {
		return "code", obj.Language, obj.RelativePath, true
	}
	doc, err := c.metadata.GetDocument(ctx, id)
	if err == nil && doc != nil {
		return "document", doc.Language, doc.RelativePath, true
	}
	return "", "", "", false
}

// fuseRRF implements Reciprocal Rank Fusion (spec.md §4.7), grounded on
// the teacher's internal/search/fusion.go RRFFusion.Fuse algorithm:
// RRF_score(d) = Σ 1/(k+rank_i) across the legs d appears in.
func fuseRRF(dense []*VectorResult, sparse []*SparseResult, k int) []*ScoredPoint {
	scores := make(map[string]float64)
	order := make([]string, 0, len(dense)+len(sparse))
	touch := func(id string) {
		if _, ok := scores[id]; !ok {
			order = append(order, id)
		}
	}
	for rank, r := range dense {
		touch(r.ID)
		scores[r.ID] += 1.0 / float64(k+rank+1)
	}
	for rank, r := range sparse {
		touch(r.ID)
		scores[r.ID] += 1.0 / float64(k+rank+1)
	}

	points := make([]*ScoredPoint, 0, len(order))
	for _, id := range order {
		points = append(points, &ScoredPoint{ID: id, Score: scores[id]})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}
		return points[i].ID < points[j].ID
	})
	return points
}

// fuseDBSF implements Distribution-Based Score Fusion: each leg's raw
// scores are standardized (z-score) before summing, so legs with
// differently-scaled score distributions contribute comparably.
func fuseDBSF(dense []*VectorResult, sparse []*SparseResult) []*ScoredPoint {
	denseScores := make(map[string]float64, len(dense))
	denseRaw := make([]float64, len(dense))
	for i, r := range dense {
		denseRaw[i] = float64(r.Score)
	}
	denseNorm := zScore(denseRaw)
	for i, r := range dense {
		denseScores[r.ID] = denseNorm[i]
	}

	sparseScores := make(map[string]float64, len(sparse))
	sparseRaw := make([]float64, len(sparse))
	for i, r := range sparse {
		sparseRaw[i] = float64(r.Score)
	}
	sparseNorm := zScore(sparseRaw)
	for i, r := range sparse {
		sparseScores[r.ID] = sparseNorm[i]
	}

	combined := make(map[string]float64, len(denseScores)+len(sparseScores))
	order := make([]string, 0, len(denseScores)+len(sparseScores))
	touch := func(id string) {
		if _, ok := combined[id]; !ok {
			order = append(order, id)
		}
	}
	for id, s := range denseScores {
		touch(id)
		combined[id] += s
	}
	for id, s := range sparseScores {
		touch(id)
		combined[id] += s
	}

	points := make([]*ScoredPoint, 0, len(order))
	for _, id := range order {
		points = append(points, &ScoredPoint{ID: id, Score: combined[id]})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}
		return points[i].ID < points[j].ID
	})
	return points
}

func zScore(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / stddev
	}
	return out
}
