package retrieve

import (
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/store"
)

// applyBoosting computes an additive boost per result from a type boost
// plus a name-match boost, then rescales final_score (spec.md §4.9 step 4).
func (r *Retriever) applyBoosting(results []*Result, query string) {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryTokens := tokenSet(query)

	for _, res := range results {
		boost := r.cfg.TypeBoosting[strings.ToLower(res.Kind)]

		nameLower := strings.ToLower(res.Name)
		qualifiedLower := strings.ToLower(res.QualifiedName)
		nameTokens := tokenSet(res.Name)

		switch {
		case queryLower != "" && queryLower == nameLower:
			boost += 0.25
		case queryLower != "" && qualifiedLower != "" && strings.Contains(qualifiedLower, queryLower):
			boost += 0.20
		case len(queryTokens) > 0 && len(nameTokens) > 0 && isSubset(nameTokens, queryTokens):
			boost += 0.15
		case len(queryTokens) > 0 && len(nameTokens) > 0 && isSubset(queryTokens, nameTokens):
			boost += 0.12
		default:
			if overlap := intersectionSize(queryTokens, nameTokens); overlap > 0 {
				boost += (float64(overlap) / float64(len(queryTokens))) * 0.05
			}
		}

		res.FinalScore = res.FinalScore * (1 + boost)
	}
}

// applyDiversityFilter preserves the first DiversityPreserveTopN results
// untouched, then drops document chunks whose parent has already appeared
// and caps code results at MaxChunksPerFile per file (spec.md §4.9 step 6).
func (r *Retriever) applyDiversityFilter(results []*Result) []*Result {
	if len(results) == 0 {
		return results
	}

	preserveN := r.cfg.DiversityPreserveTopN
	if preserveN < 0 {
		preserveN = 0
	}
	if preserveN > len(results) {
		preserveN = len(results)
	}
	maxPerFile := r.cfg.MaxChunksPerFile
	if maxPerFile <= 0 {
		maxPerFile = 2
	}

	preserved := results[:preserveN]
	rest := results[preserveN:]

	docSeen := make(map[string]bool)
	fileCounts := make(map[string]int)
	filtered := make([]*Result, 0, len(rest))

	for _, res := range rest {
		if res.Type == "document" {
			if docSeen[res.ParentDocID] {
				continue
			}
			docSeen[res.ParentDocID] = true
			filtered = append(filtered, res)
			continue
		}
		if fileCounts[res.RelativePath] >= maxPerFile {
			continue
		}
		fileCounts[res.RelativePath]++
		filtered = append(filtered, res)
	}

	return append(append([]*Result{}, preserved...), filtered...)
}

func tokenSet(text string) map[string]struct{} {
	tokens := store.TokenizeCode(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func isSubset(a, b map[string]struct{}) bool {
	if len(a) == 0 {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func intersectionSize(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
