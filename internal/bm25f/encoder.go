// Package bm25f implements C8: a weighted-field BM25F sparse encoder that
// turns a CodeObject or DocumentNode into the (indices, values) pairs C7's
// sparse store expects, with per-token indices produced by hashing rather
// than a pre-built vocabulary.
package bm25f

import (
	"hash/fnv"
	"path/filepath"

	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// Config holds the BM25F parameters (spec.md §4.8).
type Config struct {
	K1    float64
	B     float64
	AvgDL float64
}

// DefaultConfig returns the spec-default BM25F parameters.
func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75, AvgDL: 100}
}

// CodeFieldWeights are the per-field weights for code objects (spec.md §4.8).
var CodeFieldWeights = map[string]float64{
	"name":           15,
	"qualified_name": 12,
	"signature":      10,
	"docstring":      8,
	"content":        6,
	"filename":       4,
	"file_path":      2,
}

// DocumentFieldWeights are the per-field weights for document nodes
// (spec.md §4.8's "simpler three-field schema").
var DocumentFieldWeights = map[string]float64{
	"name":      5,
	"content":   5,
	"file_path": 2,
}

// Encoder produces BM25F sparse vectors for code objects and documents.
type Encoder struct {
	cfg Config
}

// NewEncoder builds an Encoder with the given parameters.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{cfg: cfg}
}

// EncodeCodeObject produces the sparse vector for a code object, weighted
// across name/qualified_name/signature/docstring/content/filename/file_path.
func (e *Encoder) EncodeCodeObject(obj *extract.CodeObject) store.SparseVector {
	fields := map[string]string{
		"name":           obj.Name,
		"qualified_name": obj.QualifiedName,
		"signature":      obj.Signature,
		"docstring":      obj.Docstring,
		"content":        obj.Source,
		"filename":       filepath.Base(obj.RelativePath),
		"file_path":      obj.RelativePath,
	}
	return e.encode(fields, CodeFieldWeights)
}

// EncodeDocument produces the sparse vector for a document node, weighted
// across name/content/file_path (using the document's title as "name").
func (e *Encoder) EncodeDocument(doc *docchunk.DocumentNode) store.SparseVector {
	fields := map[string]string{
		"name":      doc.Title,
		"content":   doc.Content,
		"file_path": doc.RelativePath,
	}
	return e.encode(fields, DocumentFieldWeights)
}

// queryFieldWeights treats query text as a single unweighted field so the
// same BM25 saturation curve scores query terms comparably to indexed ones.
var queryFieldWeights = map[string]float64{"content": 1}

// EncodeQuery produces the sparse vector for a query string, using the same
// tokenizer and hashed-index scheme as the indexed fields so query and
// document indices land in the same space.
func (e *Encoder) EncodeQuery(text string) store.SparseVector {
	return e.encode(map[string]string{"content": text}, queryFieldWeights)
}

// encode tokenizes every field, computes the BM25F weight for each distinct
// term, and hashes terms into 32-bit sparse indices.
func (e *Encoder) encode(fields map[string]string, weights map[string]float64) store.SparseVector {
	termFreq := make(map[string]float64)
	docLen := 0.0

	for field, text := range fields {
		weight := weights[field]
		if weight == 0 || text == "" {
			continue
		}
		tokens := store.TokenizeCode(text)
		docLen += float64(len(tokens)) * weight
		for _, tok := range tokens {
			termFreq[tok] += weight
		}
	}

	if len(termFreq) == 0 {
		return store.SparseVector{}
	}

	k1, b, avgDL := e.cfg.K1, e.cfg.B, e.cfg.AvgDL
	norm := 1 - b + b*(docLen/avgDL)

	indices := make([]uint32, 0, len(termFreq))
	values := make([]float32, 0, len(termFreq))
	for term, tf := range termFreq {
		score := (tf * (k1 + 1)) / (tf + k1*norm)
		indices = append(indices, hashTerm(term))
		values = append(values, float32(score))
	}

	return store.SparseVector{Indices: indices, Values: values}
}

// hashTerm hashes an already-lowercased token (store.TokenizeCode lowercases)
// into a 32-bit sparse index using FNV-1a, avoiding a pre-built vocabulary
// mapping term to index.
func hashTerm(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}
