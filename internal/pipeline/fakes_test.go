package pipeline

import (
	"context"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

// fakeStore is an in-memory Store double covering every method pipeline.go
// calls, modeled on change.mockStore's locking pattern.
type fakeStore struct {
	mu sync.Mutex

	checksums     map[string]*change.FileChecksum
	objects       map[string]*extract.CodeObject
	relationships []*extract.Relationship
	documents     map[string]*docchunk.DocumentNode
	state         *IndexState

	deletedIDs    []string
	deletedByFile []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		checksums: make(map[string]*change.FileChecksum),
		objects:   make(map[string]*extract.CodeObject),
		documents: make(map[string]*docchunk.DocumentNode),
	}
}

func (s *fakeStore) GetFileChecksum(ctx context.Context, relativePath string) (*change.FileChecksum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checksums[relativePath], nil
}

func (s *fakeStore) GetFileChecksumsBatch(ctx context.Context, relativePaths []string) (map[string]*change.FileChecksum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*change.FileChecksum, len(relativePaths))
	for _, p := range relativePaths {
		if fc, ok := s.checksums[p]; ok {
			out[p] = fc
		}
	}
	return out, nil
}

func (s *fakeStore) SetFileChecksum(ctx context.Context, fc *change.FileChecksum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksums[fc.RelativePath] = fc
	return nil
}

func (s *fakeStore) AddCodeObjects(ctx context.Context, objects []*extract.CodeObject, relationships []*extract.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range objects {
		s.objects[o.ID] = o
	}
	s.relationships = relationships
	return nil
}

func (s *fakeStore) AddDocuments(ctx context.Context, docs []*docchunk.DocumentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.documents[d.ID] = d
	}
	return nil
}

func (s *fakeStore) DeleteByFile(ctx context.Context, relativePath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedByFile = append(s.deletedByFile, relativePath)
	return 0, nil
}

func (s *fakeStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedIDs = append(s.deletedIDs, ids...)
	for _, id := range ids {
		delete(s.objects, id)
		delete(s.documents, id)
	}
	return nil
}

func (s *fakeStore) GetCodeObjectsBatch(ctx context.Context, ids []string, withVectors bool) (map[string]*extract.CodeObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*extract.CodeObject, len(ids))
	for _, id := range ids {
		if o, ok := s.objects[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (s *fakeStore) GetIndexState(ctx context.Context) (*IndexState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *fakeStore) UpdateIndexState(ctx context.Context, state *IndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// fakeProvider embeds every text to a single-dimension vector keyed by
// input length, so callers can assert on which texts were actually sent
// (e.g. docstring vs. source content) without a real model.
type fakeProvider struct {
	batchSize int
	calls     []embedCall
}

type embedCall struct {
	instruction InstructionType
	texts       []string
}

func (p *fakeProvider) Initialize(ctx context.Context) error { return nil }
func (p *fakeProvider) Cleanup(ctx context.Context) error     { return nil }

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string, instruction InstructionType) ([][]float32, error) {
	p.calls = append(p.calls, embedCall{instruction: instruction, texts: append([]string(nil), texts...)})
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = []float32{float32(len(t))}
	}
	return vectors, nil
}

func (p *fakeProvider) BatchSize() int {
	if p.batchSize > 0 {
		return p.batchSize
	}
	return 8
}

func (p *fakeProvider) Dimension() int { return 1 }
