package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseStore_AddAndSearch_RanksByIDFWeightedScore(t *testing.T) {
	s := NewSparseStore()
	ctx := context.Background()

	// "common" (index 1) appears in every doc; "rare" (index 2) appears in
	// only one. A query on the rare term should score that doc's match
	// well above a doc that only matches on the common term.
	require.NoError(t, s.Add(ctx, []string{"d1", "d2", "d3"}, []SparseVector{
		{Indices: []uint32{1, 2}, Values: []float32{1, 1}},
		{Indices: []uint32{1}, Values: []float32{1}},
		{Indices: []uint32{1}, Values: []float32{1}},
	}))

	results, err := s.Search(ctx, SparseVector{Indices: []uint32{1, 2}, Values: []float32{1, 1}}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "d1", results[0].ID, "doc matching the rare term should rank first")
}

func TestSparseStore_Add_ReplacesExistingID(t *testing.T) {
	s := NewSparseStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"d1"}, []SparseVector{{Indices: []uint32{1}, Values: []float32{1}}}))
	require.NoError(t, s.Add(ctx, []string{"d1"}, []SparseVector{{Indices: []uint32{2}, Values: []float32{1}}}))

	assert.Equal(t, 1, s.Count())
	results, err := s.Search(ctx, SparseVector{Indices: []uint32{1}, Values: []float32{1}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results, "old term mapping should be gone after replace")
}

func TestSparseStore_Delete(t *testing.T) {
	s := NewSparseStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"d1", "d2"}, []SparseVector{
		{Indices: []uint32{1}, Values: []float32{1}},
		{Indices: []uint32{1}, Values: []float32{1}},
	}))
	require.NoError(t, s.Delete(ctx, []string{"d1"}))

	assert.Equal(t, 1, s.Count())
	assert.ElementsMatch(t, []string{"d2"}, s.AllIDs())
}

func TestSparseStore_Search_EmptyStoreReturnsEmpty(t *testing.T) {
	s := NewSparseStore()
	results, err := s.Search(context.Background(), SparseVector{Indices: []uint32{1}, Values: []float32{1}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSparseStore_Persistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.gob")

	s := NewSparseStore()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"d1", "d2"}, []SparseVector{
		{Indices: []uint32{1, 2}, Values: []float32{1, 2}},
		{Indices: []uint32{2}, Values: []float32{3}},
	}))
	require.NoError(t, s.Save(path))

	reloaded := NewSparseStore()
	require.NoError(t, reloaded.Load(path))
	assert.Equal(t, 2, reloaded.Count())

	results, err := reloaded.Search(ctx, SparseVector{Indices: []uint32{2}, Values: []float32{1}}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSparseStore_Load_MissingFileIsNotAnError(t *testing.T) {
	s := NewSparseStore()
	require.NoError(t, s.Load(filepath.Join(t.TempDir(), "missing.gob")))
	assert.Equal(t, 0, s.Count())
}
