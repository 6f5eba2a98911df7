package retrieve

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/extract"
)

// expandGraph performs the one-hop relationship walk with PPR scoring
// (spec.md §4.9 step 3). It takes the top seedCount results as seeds,
// follows every outgoing relationship whose type has a configured edge
// weight, keeps each neighbor at its maximum PPR score across seeds, drops
// neighbors already present or below pprThreshold, batch-fetches the
// survivors, and appends them to results with final_score = ppr * scoreWeight.
func (r *Retriever) expandGraph(ctx context.Context, results []*Result, seedCount int, pprThreshold, scoreWeight float64) ([]*Result, error) {
	if len(results) == 0 {
		return results, nil
	}
	if seedCount > len(results) {
		seedCount = len(results)
	}
	seeds := results[:seedCount]

	present := make(map[string]bool, len(results))
	for _, res := range results {
		present[res.ID] = true
	}

	// neighborID -> best PPR score across all seeds.
	pprByNeighbor := make(map[string]float64)
	for _, seed := range seeds {
		rels, err := r.store.GetRelationships(ctx, seed.ID, "")
		if err != nil {
			continue
		}
		for _, rel := range rels {
			weight, ok := edgeWeights[rel.Type]
			if !ok {
				continue
			}
			if present[rel.TargetID] {
				continue
			}
			ppr := seed.FinalScore * weight * (1 - pprAlpha)
			if ppr < pprThreshold {
				continue
			}
			if existing, ok := pprByNeighbor[rel.TargetID]; !ok || ppr > existing {
				pprByNeighbor[rel.TargetID] = ppr
			}
		}
	}

	if len(pprByNeighbor) == 0 {
		return results, nil
	}

	neighborIDs := make([]string, 0, len(pprByNeighbor))
	for id := range pprByNeighbor {
		neighborIDs = append(neighborIDs, id)
	}

	expanded := r.fetchEntities(ctx, neighborIDs)
	for _, res := range expanded {
		ppr := pprByNeighbor[res.ID]
		res.GraphScore = ppr
		res.FinalScore = ppr * scoreWeight
		res.GraphExpanded = true
		results = append(results, res)
	}

	return results, nil
}

// fetchEntities batch-fetches code objects first, then documents for any
// ids that weren't code objects (spec.md §4.9 step 3 "code objects first,
// then documents for misses").
func (r *Retriever) fetchEntities(ctx context.Context, ids []string) []*Result {
	var out []*Result

	objs, err := r.store.GetCodeObjectsBatch(ctx, ids, false)
	if err == nil {
		for _, id := range ids {
			if obj, ok := objs[id]; ok {
				out = append(out, codeObjectResult(obj, 0))
			}
		}
	}

	remaining := make([]string, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, res := range out {
			if res.ID == id {
				found = true
				break
			}
		}
		if !found {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return out
	}

	docs, err := r.store.GetDocumentsBatch(ctx, remaining)
	if err != nil {
		return out
	}
	for _, id := range remaining {
		if doc, ok := docs[id]; ok {
			out = append(out, documentResult(doc, 0))
		}
	}

	return out
}

func codeObjectResult(obj *extract.CodeObject, score float64) *Result {
	return &Result{
		ID:            obj.ID,
		Type:          "code",
		RelativePath:  obj.RelativePath,
		Name:          obj.Name,
		QualifiedName: obj.QualifiedName,
		Language:      obj.Language,
		Kind:          string(obj.Kind),
		StartLine:     obj.StartLine,
		EndLine:       obj.EndLine,
		Content:       obj.Source,
		BaseScore:     score,
		FinalScore:    score,
	}
}
