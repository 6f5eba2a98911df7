package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// SparseVector is a BM25F-encoded term vector: 32-bit hashed term indices
// paired with their weighted values (spec.md §4.7 "one sparse vector named
// `sparse`"). internal/bm25f produces these at index and query time.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// SparseResult is a single sparse-leg search hit.
type SparseResult struct {
	ID    string
	Score float32
}

// posting is one (document, weight) pair under a term index.
type posting struct {
	id     string
	weight float32
}

// SparseStore is a hand-rolled inverted index over BM25F-encoded vectors
// with a live IDF modifier: the stored value per (term, doc) is whatever
// internal/bm25f computed at index time, but the IDF factor applied at
// query time is recomputed from the collection's current document
// frequencies. Unlike a dense index, a sparse index's own term statistics
// shift as documents are added and removed, so baking IDF into the stored
// weight would go stale.
type SparseStore struct {
	mu       sync.RWMutex
	postings map[uint32][]posting
	docTerms map[string][]uint32 // id -> distinct term indices it holds, for Delete/df bookkeeping
	totalDoc int
	closed   bool
}

// NewSparseStore creates an empty sparse index.
func NewSparseStore() *SparseStore {
	return &SparseStore{
		postings: make(map[uint32][]posting),
		docTerms: make(map[string][]uint32),
	}
}

// Add inserts or replaces the sparse vectors for the given ids.
func (s *SparseStore) Add(ctx context.Context, ids []string, vectors []SparseVector) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sparse store is closed")
	}

	for i, id := range ids {
		s.removeLocked(id)
		s.totalDoc++

		vec := vectors[i]
		terms := make([]uint32, 0, len(vec.Indices))
		for j, idx := range vec.Indices {
			s.postings[idx] = append(s.postings[idx], posting{id: id, weight: vec.Values[j]})
			terms = append(terms, idx)
		}
		s.docTerms[id] = terms
	}

	return nil
}

// removeLocked drops id from every postings list it appears in. Callers
// must hold s.mu.
func (s *SparseStore) removeLocked(id string) {
	terms, ok := s.docTerms[id]
	if !ok {
		return
	}
	for _, term := range terms {
		list := s.postings[term]
		for i, p := range list {
			if p.id == id {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(s.postings, term)
		} else {
			s.postings[term] = list
		}
	}
	delete(s.docTerms, id)
	s.totalDoc--
}

// Delete removes vectors by id.
func (s *SparseStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sparse store is closed")
	}
	for _, id := range ids {
		s.removeLocked(id)
	}
	return nil
}

// Search scores every document touched by a query term using BM25's IDF
// formula over the collection's *current* document frequencies, weighted
// by the BM25F value already baked into the stored posting.
func (s *SparseStore) Search(ctx context.Context, query SparseVector, k int) ([]*SparseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("sparse store is closed")
	}
	if s.totalDoc == 0 || len(query.Indices) == 0 {
		return []*SparseResult{}, nil
	}

	scores := make(map[string]float32)
	for i, idx := range query.Indices {
		list, ok := s.postings[idx]
		if !ok {
			continue
		}
		df := len(list)
		idf := float32(math.Log(1 + (float64(s.totalDoc)-float64(df)+0.5)/(float64(df)+0.5)))
		if idf < 0 {
			idf = 0
		}
		qv := query.Values[i]
		for _, p := range list {
			scores[p.id] += p.weight * qv * idf
		}
	}

	results := make([]*SparseResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, &SparseResult{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// AllIDs returns every document id currently in the index.
func (s *SparseStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docTerms))
	for id := range s.docTerms {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of documents in the index.
func (s *SparseStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalDoc
}

// sparseSnapshot is the on-disk gob representation.
type sparseSnapshot struct {
	Postings map[uint32][]posting
	DocTerms map[string][]uint32
	TotalDoc int
}

func init() {
	gob.Register(posting{})
}

// Save persists the index to disk (temp file + rename, matching the
// teacher's HNSWStore.Save atomicity pattern).
func (s *SparseStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp sparse index file: %w", err)
	}

	snap := sparseSnapshot{Postings: s.postings, DocTerms: s.docTerms, TotalDoc: s.totalDoc}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode sparse index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close sparse index file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the index from disk. Missing file is not an error: it
// means a fresh collection.
func (s *SparseStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open sparse index file: %w", err)
	}
	defer file.Close()

	var snap sparseSnapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snap); err != nil {
		return fmt.Errorf("decode sparse index: %w", err)
	}
	s.postings = snap.Postings
	s.docTerms = snap.DocTerms
	s.totalDoc = snap.TotalDoc
	return nil
}

// Close marks the store closed. The in-memory index has no external
// resource to release; Close exists so SparseStore shares a lifecycle
// shape with HNSWStore.
func (s *SparseStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
