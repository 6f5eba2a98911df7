package retrieve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/metrics"
	"github.com/Aman-CERP/amanmcp/internal/pipeline"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// Retriever executes queries end to end: embed, hybrid fetch, graph
// expansion, boosting, sort, diversity filter (spec.md §4.9).
type Retriever struct {
	store    Store
	embedder pipeline.EmbeddingProvider
	sparse   SparseEncoder
	cfg      config.SearchConfig
	metrics  *metrics.Collector
}

// NewRetriever builds a Retriever over the given store, embedding
// provider, and BM25F query encoder.
func NewRetriever(s Store, embedder pipeline.EmbeddingProvider, sparse SparseEncoder, cfg config.SearchConfig) *Retriever {
	return &Retriever{store: s, embedder: embedder, sparse: sparse, cfg: cfg}
}

// SetMetrics attaches the Prometheus collector Search reports latency and
// fusion-method counts to. A nil collector (the default) disables
// reporting without changing any Search behavior.
func (r *Retriever) SetMetrics(c *metrics.Collector) {
	r.metrics = c
}

// Search runs one query end to end and returns results sorted by final
// score descending.
func (r *Retriever) Search(ctx context.Context, q Query) ([]*Result, error) {
	started := time.Now()
	limit := q.Limit
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}

	denseVec, err := r.resolveEmbedding(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("resolve query embedding: %w", err)
	}

	var sparseVec store.SparseVector
	if r.sparse != nil && q.Text != "" {
		sparseVec = r.sparse.EncodeQuery(q.Text)
	}

	fusionMethod := r.cfg.FusionMethod
	if fusionMethod == "" {
		fusionMethod = "rrf"
	}

	// Step 2: hybrid fetch, over-fetching 3x for later filtering
	// (spec.md §4.9 step 2).
	points, err := r.store.HybridSearch(ctx, denseVec, sparseVec, store.HybridSearchParams{
		Limit:               limit * 3,
		PrefetchRatioDense:  r.cfg.PrefetchRatioDense,
		PrefetchRatioSparse: r.cfg.PrefetchRatioSparse,
		FusionMethod:        fusionMethod,
		RRFConstant:         r.cfg.RRFConstant,
		TypeFilter:          q.TypeFilter,
		LanguageFilter:      q.LanguageFilter,
		FileFilter:          q.FileFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	r.metrics.IncFusionMethod(fusionMethod)

	results, err := r.hydrate(ctx, points)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	if r.cfg.EnableGraphExpansion {
		seedCount := r.cfg.GraphSeedCount
		if seedCount <= 0 {
			seedCount = 5
		}
		results, err = r.expandGraph(ctx, results, seedCount, r.cfg.GraphPPRThreshold, r.cfg.GraphScoreWeight)
		if err != nil {
			return nil, fmt.Errorf("expand graph: %w", err)
		}
	}

	r.applyBoosting(results, q.Text)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	results = r.applyDiversityFilter(results)

	if q.MinScore > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.FinalScore >= q.MinScore {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	if len(results) > limit {
		results = results[:limit]
	}
	r.metrics.ObserveRetrieval(fusionMethod, time.Since(started), len(results))
	return results, nil
}

// resolveEmbedding returns the query's pre-computed embedding, or calls the
// embedding provider with NL2CODE_QUERY (spec default) when absent.
func (r *Retriever) resolveEmbedding(ctx context.Context, q Query) ([]float32, error) {
	if len(q.Embedding) > 0 {
		return q.Embedding, nil
	}
	if r.embedder == nil || q.Text == "" {
		return nil, nil
	}
	instruction := q.Instruction
	if instruction == "" {
		instruction = pipeline.InstructionNL2CodeQuery
	}
	vecs, err := r.embedder.EmbedBatch(ctx, []string{q.Text}, instruction)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// hydrate turns hybrid_search's scored points into full Results by
// batch-fetching code objects and documents.
func (r *Retriever) hydrate(ctx context.Context, points []*store.ScoredPoint) ([]*Result, error) {
	var codeIDs, docIDs []string
	for _, p := range points {
		if p.Type == "document" {
			docIDs = append(docIDs, p.ID)
		} else {
			codeIDs = append(codeIDs, p.ID)
		}
	}

	codeObjs, err := r.store.GetCodeObjectsBatch(ctx, codeIDs, false)
	if err != nil {
		return nil, err
	}
	docs, err := r.store.GetDocumentsBatch(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(points))
	for _, p := range points {
		var res *Result
		if p.Type == "document" {
			if doc, ok := docs[p.ID]; ok {
				res = documentResult(doc, p.Score)
			}
		} else if obj, ok := codeObjs[p.ID]; ok {
			res = codeObjectResult(obj, p.Score)
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, nil
}

func documentResult(doc *docchunk.DocumentNode, score float64) *Result {
	parent := doc.ParentID
	if parent == "" {
		parent = doc.RelativePath
	}
	return &Result{
		ID:           doc.ID,
		Type:         "document",
		RelativePath: doc.RelativePath,
		Name:         doc.Title,
		Language:     doc.Language,
		Kind:         string(doc.Kind),
		StartLine:    doc.StartLine,
		EndLine:      doc.EndLine,
		Content:      doc.Content,
		BaseScore:    score,
		FinalScore:   score,
		ParentDocID:  parent,
	}
}
