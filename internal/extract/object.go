package extract

// ObjectID returns the object's deterministic id. Satisfies the narrow
// change.Object port C5 uses for embedding-reuse comparison.
func (o *CodeObject) ObjectID() string { return o.ID }

// ObjectChecksum returns the object's content checksum.
func (o *CodeObject) ObjectChecksum() string { return o.ContentChecksum }

// SetEmbedding copies a previously computed embedding onto this object.
func (o *CodeObject) SetEmbedding(vec []float32) { o.Embedding = vec }

// EmbeddingVector returns the object's current embedding, if any.
func (o *CodeObject) EmbeddingVector() []float32 { return o.Embedding }
