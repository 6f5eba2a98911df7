package registry

import (
	"sort"
	"strings"
)

// similarityRatio returns a 0..1 similarity ratio between a and b from a
// Levenshtein edit distance normalized by the longer string's length — the
// same normalized-distance shape a SequenceMatcher ratio produces, without
// pulling in a string-similarity dependency no pack repo imports directly.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if rl := len([]rune(b)); rl > maxLen {
		maxLen = rl
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// FindSimilar returns projects whose name or id fuzzy-matches query at or
// above threshold, most similar first — a disambiguation aid for a caller
// that got Resolve's exact match wrong. A substring hit is floored at 0.8
// similarity regardless of edit distance, since a substring match is a much
// stronger signal than raw character overlap suggests.
func (r *Registry) FindSimilar(query string, threshold float64) []*Info {
	projects := r.List()
	queryLower := strings.ToLower(query)

	type scored struct {
		info  *Info
		ratio float64
	}
	var matches []scored
	for _, info := range projects {
		nameLower := strings.ToLower(info.Name)
		idLower := strings.ToLower(info.ID)

		best := similarityRatio(queryLower, nameLower)
		if r := similarityRatio(queryLower, idLower); r > best {
			best = r
		}
		if strings.Contains(nameLower, queryLower) || strings.Contains(idLower, queryLower) {
			if best < 0.8 {
				best = 0.8
			}
		}
		if best >= threshold {
			matches = append(matches, scored{info, best})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].ratio > matches[j].ratio })
	out := make([]*Info, len(matches))
	for i, m := range matches {
		out[i] = m.info
	}
	return out
}
