package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/astparse"
	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/metrics"
	"github.com/Aman-CERP/amanmcp/internal/scanner"
)

const (
	defaultFileChunkSize = 30
	defaultBatchSize     = 64
)

// Pipeline drives one indexing run through the state machine spec.md §4.6
// describes: Scan, then for each chunk Extract → Embed → Persist →
// Barrier, then Finalize.
type Pipeline struct {
	rootDir string
	cfg     config.IndexingConfig

	store      Store
	provider   EmbeddingProvider
	translator TranslationProvider

	scanner         *scanner.Scanner
	extractor       *extract.Extractor
	markdownChunker *docchunk.MarkdownChunker
	configChunker   *docchunk.ConfigChunker
	parserPool      *parserPool
	detector        *change.Detector

	workers int
	logger  *slog.Logger
	metrics *metrics.Collector
}

// SetMetrics attaches the Prometheus collector Run reports its summary to.
// A nil collector (the default) disables reporting without changing Run's
// behavior.
func (p *Pipeline) SetMetrics(c *metrics.Collector) {
	p.metrics = c
}

// NewPipeline wires every C2-C5 component the run loop needs behind one
// driver. translator may be nil: translation is optional (spec.md §4.6
// "Translate (optional)").
func NewPipeline(rootDir string, cfg config.IndexingConfig, store Store, provider EmbeddingProvider, translator TranslationProvider, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("pipeline: new scanner: %w", err)
	}

	workers := cfg.ParallelWorkers
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers > 8 {
			workers = 8
		}
		if workers < 1 {
			workers = 1
		}
	}

	registry := astparse.DefaultRegistry()
	applyParsingConfig(registry, cfg.Parsing)

	extractOpts := extract.DefaultOptions()
	if cfg.Parsing.ChunkingThresholdBytes > 0 {
		extractOpts.MaxObjectSize = cfg.Parsing.ChunkingThresholdBytes
	}
	if !cfg.Parsing.EnableChunking {
		extractOpts = extract.Options{MaxObjectSize: 1 << 30, MaxClassMethods: 1 << 30}
	}

	return &Pipeline{
		rootDir:         rootDir,
		cfg:             cfg,
		store:           store,
		provider:        provider,
		translator:      translator,
		scanner:         sc,
		extractor:       extract.NewExtractor(extractOpts),
		markdownChunker: docchunk.NewMarkdownChunker(docchunk.DefaultMarkdownOptions()),
		configChunker:   docchunk.NewConfigChunker(docchunk.DefaultConfigOptions()),
		parserPool:      newParserPool(registry, workers),
		detector:        change.NewDetector(store, 0),
		workers:         workers,
		logger:          logger,
	}, nil
}

// applyParsingConfig threads the configured parse timeout and per-language
// overrides into the shared registry's LanguageConfig entries. Only called
// once at construction, before any worker receives a parser from the pool,
// so the mutation is safe despite LanguageConfig having no setter API.
func applyParsingConfig(registry *astparse.LanguageRegistry, cfg config.ParsingConfig) {
	if cfg.TimeoutMicros <= 0 {
		return
	}
	for _, name := range []string{"go", "typescript", "javascript", "python"} {
		lc, ok := registry.GetByName(name)
		if !ok {
			continue
		}
		lc.DefaultTimeoutMicros = cfg.TimeoutMicros
		if override, ok := cfg.LanguageOverrides[name]; ok && override.TimeoutMicros > 0 {
			lc.DefaultTimeoutMicros = override.TimeoutMicros
		}
	}
}

func (p *Pipeline) logf(msg string, kv ...string) {
	args := make([]any, 0, len(kv))
	for _, s := range kv {
		args = append(args, s)
	}
	p.logger.Warn(msg, args...)
}

// Run is the incremental entry point (spec.md §4.6 "Incremental entry"):
// with no prior IndexState this falls back to a full run; otherwise it
// partitions files via C5 and reindexes only what changed.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	started := time.Now()

	state, err := p.store.GetIndexState(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read index state: %w", err)
	}

	codeFiles, docFiles, err := p.scan(ctx, p.rootDir)
	if err != nil {
		return nil, err
	}

	mode := "full"
	var result *RunResult
	if state == nil {
		result, err = p.runFull(ctx, codeFiles, docFiles)
	} else {
		mode = "incremental"
		result, err = p.runIncremental(ctx, codeFiles, docFiles, state)
	}
	if err != nil {
		p.metrics.ObservePipelineRun(mode, "error", time.Since(started), len(codeFiles)+len(docFiles), 0)
		return nil, err
	}

	result.Duration = time.Since(started)
	p.metrics.ObservePipelineRun(mode, "ok", result.Duration, result.FilesScanned, result.ObjectsExtracted+result.DocumentsExtracted)
	return result, nil
}

// runFull processes every scanned file, chunked into fixed-size batches
// (spec.md §4.6 "chunk = fixed-size slice of file paths, default 30").
func (p *Pipeline) runFull(ctx context.Context, codeFiles, docFiles []scannedFile) (*RunResult, error) {
	result := &RunResult{FilesScanned: len(codeFiles) + len(docFiles), CodeFiles: len(codeFiles), DocumentFiles: len(docFiles)}
	languages := make(map[string]bool)

	chunkSize := p.cfg.FileChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultFileChunkSize
	}

	for start := 0; start < len(codeFiles); start += chunkSize {
		end := start + chunkSize
		if end > len(codeFiles) {
			end = len(codeFiles)
		}
		chunk := codeFiles[start:end]
		for _, f := range chunk {
			languages[f.Language] = true
		}
		stats, err := p.processCodeChunk(ctx, chunk, nil)
		if err != nil {
			return nil, err
		}
		result.ObjectsExtracted += stats.objects
		result.RelationshipsCount += stats.relationships
		result.EmbeddingsGenerated += stats.generated
		result.EmbeddingsReused += stats.reused
	}

	for start := 0; start < len(docFiles); start += chunkSize {
		end := start + chunkSize
		if end > len(docFiles) {
			end = len(docFiles)
		}
		chunk := docFiles[start:end]
		stats, err := p.processDocChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		result.DocumentsExtracted += stats.documents
		result.EmbeddingsGenerated += stats.generated
	}

	state, err := p.finalize(ctx, result, languages)
	if err != nil {
		return nil, err
	}
	result.State = state
	return result, nil
}

// runIncremental partitions scanned files via C5, reindexes only the
// changed ones with embedding reuse enabled, and removes objects/documents
// that a changed file no longer contains (spec.md §4.6 "Incremental entry").
// Only files the scan still finds are partitioned: objects and documents of
// a file that has been removed from the workspace are not deleted.
func (p *Pipeline) runIncremental(ctx context.Context, codeFiles, docFiles []scannedFile, prior *IndexState) (*RunResult, error) {
	languages := make(map[string]bool)
	for _, l := range prior.Languages {
		languages[l] = true
	}

	codeRefs := make([]change.FileRef, len(codeFiles))
	byRef := make(map[string]scannedFile, len(codeFiles))
	for i, f := range codeFiles {
		codeRefs[i] = f.FileRef
		byRef[f.RelativePath] = f
	}
	changed, _, err := p.detector.Partition(ctx, codeRefs)
	if err != nil {
		return nil, err
	}

	chunkSize := p.cfg.FileChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultFileChunkSize
	}

	changedFiles := make([]scannedFile, 0, len(changed))
	for _, ref := range changed {
		changedFiles = append(changedFiles, byRef[ref.RelativePath])
		languages[byRef[ref.RelativePath].Language] = true
	}

	result := &RunResult{
		CodeFiles:     len(changedFiles),
		DocumentFiles: 0, // filled in once changed document files are known below
	}

	for start := 0; start < len(changedFiles); start += chunkSize {
		end := start + chunkSize
		if end > len(changedFiles) {
			end = len(changedFiles)
		}
		chunk := changedFiles[start:end]

		stats, err := p.processCodeChunk(ctx, chunk, p.detector)
		if err != nil {
			return nil, err
		}
		result.ObjectsExtracted += stats.objects
		result.RelationshipsCount += stats.relationships
		result.EmbeddingsGenerated += stats.generated
		result.EmbeddingsReused += stats.reused
		result.ObjectsDeleted += stats.deleted
	}

	docRefs := make([]change.FileRef, len(docFiles))
	byDocRef := make(map[string]scannedFile, len(docFiles))
	for i, f := range docFiles {
		docRefs[i] = f.FileRef
		byDocRef[f.RelativePath] = f
	}
	changedDocs, _, err := p.detector.Partition(ctx, docRefs)
	if err != nil {
		return nil, err
	}
	changedDocFiles := make([]scannedFile, 0, len(changedDocs))
	for _, ref := range changedDocs {
		changedDocFiles = append(changedDocFiles, byDocRef[ref.RelativePath])
	}
	result.DocumentFiles = len(changedDocFiles)
	result.FilesScanned = len(changedFiles) + len(changedDocFiles)

	for start := 0; start < len(changedDocFiles); start += chunkSize {
		end := start + chunkSize
		if end > len(changedDocFiles) {
			end = len(changedDocFiles)
		}
		chunk := changedDocFiles[start:end]

		stats, err := p.processDocChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		result.DocumentsExtracted += stats.documents
		result.EmbeddingsGenerated += stats.generated
	}

	state, err := p.finalize(ctx, result, languages)
	if err != nil {
		return nil, err
	}
	result.State = state
	return result, nil
}

// processCodeChunk runs Extract → Embed → Persist for one chunk of code
// files. When detector is non-nil (incremental mode), C5's checksum-based
// reuse is applied before any embedding is regenerated, and any object ids
// present in the old cache but absent from the new extraction are deleted
// (spec.md §4.5 "Deletion detection" / §4.6 "Persist").
func (p *Pipeline) processCodeChunk(ctx context.Context, files []scannedFile, detector *change.Detector) (chunkStats, error) {
	var stats chunkStats

	extractions, okFiles, err := p.extractChunk(ctx, files)
	if err != nil {
		return stats, err
	}

	batch := &extract.Batch{Files: extractions}
	relationships := extract.ResolveRelationships(batch)
	stats.relationships = len(relationships)

	var allObjects []*extract.CodeObject
	for _, fe := range extractions {
		allObjects = append(allObjects, fe.Objects...)
	}
	stats.objects = len(allObjects)

	var oldEmbeddings map[string][]float32
	var deletedIDs []string
	if detector != nil {
		cachedByFile := make([]*change.FileChecksum, len(extractions))
		for i := range extractions {
			cached, err := p.store.GetFileChecksum(ctx, okFiles[i].RelativePath)
			if err != nil {
				return stats, err
			}
			cachedByFile[i] = cached
		}

		var candidateIDs []string
		for i, fe := range extractions {
			candidateIDs = append(candidateIDs, change.ReuseCandidates(fe.Objects, cachedByFile[i])...)
			deletedIDs = append(deletedIDs, change.DetectDeletions(fe.Objects, cachedByFile[i])...)
		}
		if len(candidateIDs) > 0 {
			old, err := p.store.GetCodeObjectsBatch(ctx, candidateIDs, true)
			if err != nil {
				return stats, err
			}
			oldEmbeddings = make(map[string][]float32, len(old))
			for id, obj := range old {
				if len(obj.Embedding) > 0 {
					oldEmbeddings[id] = obj.Embedding
				}
			}
		}
	}

	generated, reused, err := p.embedCodeObjects(ctx, allObjects, oldEmbeddings)
	if err != nil {
		return stats, err
	}
	stats.generated = generated
	stats.reused = reused

	if err := p.persistObjects(ctx, allObjects, relationships); err != nil {
		return stats, err
	}

	if len(deletedIDs) > 0 {
		if err := p.store.Delete(ctx, deletedIDs); err != nil {
			return stats, err
		}
		stats.deleted = len(deletedIDs)
	}

	for i, fe := range extractions {
		f := okFiles[i]
		if err := change.UpdateCache(ctx, p.store, f.AbsolutePath, f.RelativePath, fe.Objects); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// processDocChunk runs Chunk → Embed → Persist for one chunk of document
// files.
func (p *Pipeline) processDocChunk(ctx context.Context, files []scannedFile) (chunkStats, error) {
	var stats chunkStats

	nodes := p.chunkDocuments(files)
	stats.documents = len(nodes)

	generated, err := p.embedDocuments(ctx, nodes)
	if err != nil {
		return stats, err
	}
	stats.generated = generated

	if err := p.persistDocuments(ctx, nodes); err != nil {
		return stats, err
	}

	byFile := make(map[string][]*docchunk.DocumentNode)
	for _, n := range nodes {
		byFile[n.RelativePath] = append(byFile[n.RelativePath], n)
	}

	var deletedIDs []string
	for _, f := range files {
		docsForFile := byFile[f.RelativePath]
		checksumObjs := make([]*docNodeChecksum, len(docsForFile))
		for i, n := range docsForFile {
			checksumObjs[i] = &docNodeChecksum{id: n.ID, checksum: n.Checksum}
		}

		cached, err := p.store.GetFileChecksum(ctx, f.RelativePath)
		if err != nil {
			return stats, err
		}
		deletedIDs = append(deletedIDs, change.DetectDeletions(checksumObjs, cached)...)

		if err := change.UpdateCache(ctx, p.store, f.AbsolutePath, f.RelativePath, checksumObjs); err != nil {
			return stats, err
		}
	}

	if len(deletedIDs) > 0 {
		if err := p.store.Delete(ctx, deletedIDs); err != nil {
			return stats, err
		}
		stats.deleted = len(deletedIDs)
	}

	return stats, nil
}

// docNodeChecksum adapts a DocumentNode's id/checksum pair to change.Object
// for UpdateCache's checksum-cache bookkeeping; documents never reuse
// embeddings so the embedding half of the interface is a no-op.
type docNodeChecksum struct {
	id, checksum string
}

func (d *docNodeChecksum) ObjectID() string           { return d.id }
func (d *docNodeChecksum) ObjectChecksum() string     { return d.checksum }
func (d *docNodeChecksum) SetEmbedding(vec []float32) {}
func (d *docNodeChecksum) EmbeddingVector() []float32 { return nil }

// finalize writes the run's IndexState (spec.md §4.6 "Finalize"): commit
// hash, timestamp, counts, union of languages, schema version, idle status.
func (p *Pipeline) finalize(ctx context.Context, result *RunResult, languages map[string]bool) (*IndexState, error) {
	langs := make([]string, 0, len(languages))
	for l := range languages {
		langs = append(langs, l)
	}

	projectID, projectName := p.projectIdentity()

	state := &IndexState{
		ProjectID:      projectID,
		ProjectName:    projectName,
		RepositoryPath: p.rootDir,
		CommitHash:     currentCommitHash(p.rootDir),
		IndexedAt:      time.Now(),
		FileCount:      result.FilesScanned,
		ObjectCount:    result.ObjectsExtracted,
		DocumentCount:  result.DocumentsExtracted,
		Languages:      langs,
		SchemaVersion:  schemaVersion,
		Status:         "idle",
	}
	if err := p.store.UpdateIndexState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// projectIdentity derives the project id/name pair this run's IndexState
// carries: a deterministic hash of the root directory as the id (the same
// scheme the teacher's index/runner.go hashString uses for its project id)
// and the root directory's base name as the human-readable name.
func (p *Pipeline) projectIdentity() (id, name string) {
	return hashRootDir(p.rootDir), filepath.Base(p.rootDir)
}
