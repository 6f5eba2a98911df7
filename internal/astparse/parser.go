// Package astparse wraps tree-sitter with the parse contract spec.md §4.2
// requires on top of it: per-language timeouts, a partial-parse quality
// gate, and incremental re-parse reuse.
package astparse

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	amanerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

const (
	// defaultTimeoutMicros is the parse timeout for languages whose
	// LanguageConfig does not override it.
	defaultTimeoutMicros = 5_000_000

	// defaultPartialThreshold is the minimum valid_ratio a tree with error
	// nodes must clear to be returned instead of rejected outright.
	defaultPartialThreshold = 0.5
)

// Options configures a Parser's behavior; the zero value uses the spec's
// defaults (5s timeout, 0.5 partial threshold, incremental reuse enabled).
type Options struct {
	// PartialThreshold overrides defaultPartialThreshold when non-zero.
	PartialThreshold float64
	// DisableIncremental turns off previous-tree reuse across Parse calls.
	DisableIncremental bool
	// DisablePartial rejects any tree containing error nodes outright,
	// regardless of valid_ratio.
	DisablePartial bool
}

// Parser wraps a tree-sitter parser with timeout, quality-gating, and
// incremental reuse. Not safe for concurrent use; callers needing
// concurrency create one Parser per worker (spec.md §5).
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
	opts     Options

	prevTree    *sitter.Tree
	prevLang    string
	incremental bool
}

// NewParser creates a parser using the process-wide default registry.
func NewParser() *Parser {
	return NewParserWithRegistry(DefaultRegistry(), Options{})
}

// NewParserWithRegistry creates a parser against a custom registry, e.g.
// in tests that register a subset of languages.
func NewParserWithRegistry(registry *LanguageRegistry, opts Options) *Parser {
	return &Parser{
		parser:      sitter.NewParser(),
		registry:    registry,
		opts:        opts,
		incremental: !opts.DisableIncremental,
	}
}

// Reset drops any cached previous tree, forcing the next Parse to start
// from scratch. Callers switching a Parser instance to a different file
// must call this first, or pass a different *Parser per file.
func (p *Parser) Reset() {
	p.prevTree = nil
	p.prevLang = ""
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Parse parses source as the given language, enforcing the per-language
// timeout and the partial-parse quality gate, and reusing the previous
// tree for incremental re-parses when enabled and the language matches.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, amanerrors.New(amanerrors.ErrCodeUnsupportedLanguage,
			fmt.Sprintf("no grammar registered for language %q", language), nil)
	}
	p.parser.SetLanguage(tsLang)

	timeout := time.Duration(p.timeoutMicros(language)) * time.Microsecond
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var oldTree *sitter.Tree
	if p.incremental && p.prevLang == language {
		oldTree = p.prevTree
	}

	tsTree, err := p.parser.ParseCtx(pctx, oldTree, source)
	if err != nil {
		if pctx.Err() != nil {
			return nil, amanerrors.New(amanerrors.ErrCodeParseTimeout,
				fmt.Sprintf("parse of %s source timed out after %s", language, timeout), err)
		}
		return nil, amanerrors.New(amanerrors.ErrCodeParseSyntax,
			fmt.Sprintf("failed to parse %s source", language), err)
	}
	if tsTree == nil {
		return nil, amanerrors.New(amanerrors.ErrCodeParseSyntax,
			fmt.Sprintf("parser returned nil tree for %s source", language), nil)
	}

	root := convertNode(tsTree.RootNode())
	total, errNodes := countNodes(root)
	validRatio := 1.0
	if total > 0 {
		validRatio = 1.0 - float64(errNodes)/float64(total)
	}

	if errNodes > 0 {
		threshold := p.opts.PartialThreshold
		if threshold == 0 {
			threshold = defaultPartialThreshold
		}
		if p.opts.DisablePartial || validRatio < threshold {
			return nil, amanerrors.New(amanerrors.ErrCodePartialQualityLow,
				fmt.Sprintf("parse of %s source fell below quality threshold: valid_ratio=%.3f < %.3f",
					language, validRatio, threshold), nil).
				WithDetail("valid_ratio", fmt.Sprintf("%.3f", validRatio))
		}
	}

	if p.incremental {
		p.prevTree = tsTree
		p.prevLang = language
	}

	return &Tree{
		Root:       root,
		Source:     source,
		Language:   language,
		ValidRatio: validRatio,
		Partial:    errNodes > 0,
	}, nil
}

// timeoutMicros resolves the effective timeout for a language, falling
// back to defaultTimeoutMicros when the registry has no override.
func (p *Parser) timeoutMicros(language string) int64 {
	if cfg, ok := p.registry.GetByName(language); ok && cfg.DefaultTimeoutMicros > 0 {
		return cfg.DefaultTimeoutMicros
	}
	return defaultTimeoutMicros
}

// convertNode converts a tree-sitter node (and its subtree) into the
// language-neutral Node representation. Byte ranges are preserved verbatim;
// content slicing happens lazily against the caller's source buffer.
func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError:  tsNode.HasError(),
		IsMissing: tsNode.IsMissing(),
		Children:  make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}

	return node
}
