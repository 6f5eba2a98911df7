package pipeline

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmcp/internal/astparse"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

// parserPool hands out one *astparse.Parser per concurrent worker:
// astparse.Parser carries mutable incremental-reuse state and is not safe
// for concurrent use (spec.md §5 "extraction = N concurrent tasks").
type parserPool struct {
	parsers chan *astparse.Parser
}

func newParserPool(registry *astparse.LanguageRegistry, size int) *parserPool {
	pp := &parserPool{parsers: make(chan *astparse.Parser, size)}
	for i := 0; i < size; i++ {
		pp.parsers <- astparse.NewParserWithRegistry(registry, astparse.Options{})
	}
	return pp
}

func (pp *parserPool) acquire(ctx context.Context) (*astparse.Parser, error) {
	select {
	case p := <-pp.parsers:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (pp *parserPool) release(p *astparse.Parser) {
	p.Reset()
	pp.parsers <- p
}

// extractChunk runs the Extract stage over one chunk of code files (spec.md
// §4.6): per-file parse+extract under a bounded semaphore, per-file errors
// logged and skipped rather than failing the run. The returned slices stay
// index-aligned — extractions[i] belongs to okFiles[i] — so callers can zip
// a file's extraction back to its path for checksum bookkeeping even when
// some input files were skipped.
func (p *Pipeline) extractChunk(ctx context.Context, files []scannedFile) (extractions []*extract.FileExtraction, okFiles []scannedFile, err error) {
	results := make([]*extract.FileExtraction, len(files))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.workers)
	var mu sync.Mutex

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			fe, err := p.extractFile(gctx, f)
			if err != nil {
				mu.Lock()
				p.logf("extract: skipping file", "path", f.RelativePath, "error", err.Error())
				mu.Unlock()
				return nil
			}
			results[i] = fe
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	extractions = make([]*extract.FileExtraction, 0, len(results))
	okFiles = make([]scannedFile, 0, len(results))
	for i, fe := range results {
		if fe != nil {
			extractions = append(extractions, fe)
			okFiles = append(okFiles, files[i])
		}
	}
	return extractions, okFiles, nil
}

// extractFile parses one file with a pooled parser and hands the tree to
// the shared extract.Extractor. Parse/IO failures are the caller's to log
// and skip — never fatal to the run (spec.md §4.6).
func (p *Pipeline) extractFile(ctx context.Context, f scannedFile) (*extract.FileExtraction, error) {
	parser, err := p.parserPool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.parserPool.release(parser)

	source, err := os.ReadFile(f.AbsolutePath)
	if err != nil {
		return nil, err
	}

	tree, err := parser.Parse(ctx, source, f.Language)
	if err != nil {
		return nil, err
	}

	return p.extractor.ExtractFile(tree, source, f.AbsolutePath, f.RelativePath)
}
