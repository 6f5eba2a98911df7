package extract

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/astparse"
	"github.com/Aman-CERP/amanmcp/internal/identity"
)

// Options configures the chunking policy and extraction thresholds
// (spec.md §4.3).
type Options struct {
	// MaxObjectSize is the character-count threshold above which a class
	// is emitted as a summary object instead of one whole object.
	MaxObjectSize int
	// MaxClassMethods is the method-count threshold above which a class
	// is emitted as a summary object.
	MaxClassMethods int
}

// DefaultOptions matches the teacher's chunk-size defaults, scaled to
// whole-class chunking rather than sub-line chunking.
func DefaultOptions() Options {
	return Options{MaxObjectSize: 4000, MaxClassMethods: 20}
}

// Extractor transforms a parse tree into code objects, relationships, and
// imports. Per language it runs four fixed hooks (extractClasses,
// extractInterfaces, extractFunctions, extractEnums) — the template method
// spec.md §4.3 calls for — then a name-resolution pass binds relationship
// candidates within the batch.
type Extractor struct {
	registry *astparse.LanguageRegistry
	opts     Options
}

// NewExtractor builds an extractor against the default language registry.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{registry: astparse.DefaultRegistry(), opts: opts}
}

// Candidate is an unresolved name reference discovered while walking a
// file; the batch-level resolver in resolve.go turns these into
// Relationships once every file's objects are known.
type Candidate struct {
	Type       RelationType
	SourceID   string
	SourceKind ObjectKind
	TargetName string
	Line       int
}

// FileExtraction is ExtractFile's internal working state, threaded through
// to the batch resolver.
type FileExtraction struct {
	Objects    []*CodeObject
	Candidates []*Candidate
	Imports    []*Import
}

// ExtractFile walks tree and returns every CodeObject, unresolved
// relationship candidate, and import statement it finds. Call
// ResolveRelationships across the whole batch (every file indexed in this
// run) to turn candidates into Relationships.
func (e *Extractor) ExtractFile(tree *astparse.Tree, source []byte, absolutePath, relativePath string) (*FileExtraction, error) {
	if tree == nil || tree.Root == nil {
		return &FileExtraction{}, nil
	}
	cfg, ok := e.registry.GetByName(tree.Language)
	if !ok {
		return nil, fmt.Errorf("extract: no language config for %q", tree.Language)
	}

	fe := &FileExtraction{}
	ctx := &extractCtx{
		ext: e, cfg: cfg, source: source,
		absolutePath: absolutePath, relativePath: relativePath, language: tree.Language,
	}

	ctx.extractClasses(tree.Root, fe)
	ctx.extractInterfaces(tree.Root, fe)
	ctx.extractFunctions(tree.Root, fe)
	ctx.extractEnums(tree.Root, fe)
	ctx.extractImports(tree.Root, fe)
	ctx.extractReferencesAndCalls(tree.Root, fe)

	return fe, nil
}

// extractCtx carries the per-file state the four hooks and the
// relationship walk share.
type extractCtx struct {
	ext          *Extractor
	cfg          *astparse.LanguageConfig
	source       []byte
	absolutePath string
	relativePath string
	language     string
}

func (c *extractCtx) newObject(n *astparse.Node, kind ObjectKind, name string, parent *CodeObject) *CodeObject {
	start, end := n.StartLine(), n.EndLine()
	obj := &CodeObject{
		ID:              identity.ObjectID(c.relativePath, name, string(kind), start, end),
		AbsolutePath:    c.absolutePath,
		RelativePath:    c.relativePath,
		Kind:            kind,
		Name:            name,
		QualifiedName:   name,
		Language:        c.language,
		StartLine:       start,
		EndLine:         end,
		Source:          n.Content(c.source),
		ContentChecksum: identity.ContentChecksum([]byte(n.Content(c.source))),
	}
	if parent != nil {
		obj.ParentID = parent.ID
		obj.QualifiedName = parent.QualifiedName + "." + name
	}
	obj.Docstring = extractDocComment(n, c.source, c.language)
	obj.Signature = extractSignature(n, c.source, kind, c.language)
	return obj
}

// extractClasses implements the "extract classes (with nested methods)"
// hook, applying the §4.3 chunking policy: oversized/method-heavy classes
// become a summary object plus independently-parented method objects.
func (c *extractCtx) extractClasses(root *astparse.Node, fe *FileExtraction) {
	for _, classType := range c.cfg.ClassTypes {
		for _, n := range root.CollectByType(classType) {
			name := extractName(n, c.source, c.cfg, c.language)
			if name == "" {
				continue
			}

			methods := collectMethods(n, c.cfg)
			body := n.Content(c.source)

			if len(body) > c.ext.opts.MaxObjectSize || len(methods) > c.ext.opts.MaxClassMethods {
				summary := c.newObject(n, KindSummary, name, nil)
				summary.Source = summaryDeclaration(n, c.source, methods, c.language)
				fe.Objects = append(fe.Objects, summary)
				for _, m := range methods {
					c.emitMethod(m, fe, summary)
				}
				continue
			}

			class := c.newObject(n, KindClass, name, nil)
			fe.Objects = append(fe.Objects, class)
			for _, m := range methods {
				c.emitMethod(m, fe, class)
			}
		}
	}
}

func (c *extractCtx) emitMethod(n *astparse.Node, fe *FileExtraction, parent *CodeObject) {
	name := extractName(n, c.source, c.cfg, c.language)
	if name == "" {
		return
	}
	fe.Objects = append(fe.Objects, c.newObject(n, KindMethod, name, parent))
}

// extractInterfaces implements the "extract interfaces" hook.
func (c *extractCtx) extractInterfaces(root *astparse.Node, fe *FileExtraction) {
	for _, ifaceType := range c.cfg.InterfaceTypes {
		for _, n := range root.CollectByType(ifaceType) {
			name := extractName(n, c.source, c.cfg, c.language)
			if name == "" {
				continue
			}
			fe.Objects = append(fe.Objects, c.newObject(n, KindInterface, name, nil))
		}
	}
}

// extractFunctions implements the "extract top-level functions" hook.
// Methods nested inside a class node were already emitted by
// extractClasses, so here we only walk nodes whose nearest class ancestor
// is absent — i.e. whatever the language's function/method node types
// collect outside class bodies (free functions, Go top-level functions,
// TS/JS top-level arrow/function consts).
func (c *extractCtx) extractFunctions(root *astparse.Node, fe *FileExtraction) {
	seen := make(map[*astparse.Node]bool)
	for _, classType := range c.cfg.ClassTypes {
		for _, cn := range root.CollectByType(classType) {
			cn.Walk(func(n *astparse.Node) bool { seen[n] = true; return true })
		}
	}

	for _, ft := range c.cfg.FunctionTypes {
		for _, n := range root.CollectByType(ft) {
			if seen[n] {
				continue
			}
			name := extractName(n, c.source, c.cfg, c.language)
			if name == "" {
				continue
			}
			fe.Objects = append(fe.Objects, c.newObject(n, KindFunction, name, nil))
		}
	}
	// Go methods are top-level method_declaration nodes with a receiver,
	// not nested inside a class body; the language has no ClassTypes so
	// `seen` above is always empty for it.
	for _, mt := range c.cfg.MethodTypes {
		for _, n := range root.CollectByType(mt) {
			if seen[n] {
				continue
			}
			name := extractName(n, c.source, c.cfg, c.language)
			if name == "" {
				continue
			}
			fe.Objects = append(fe.Objects, c.newObject(n, KindMethod, name, nil))
		}
	}

	for _, candidateVar := range jsFunctionLikeVariables(root, c.source, c.cfg, c.language) {
		if seen[candidateVar.node] {
			continue
		}
		fe.Objects = append(fe.Objects, c.newObject(candidateVar.node, KindFunction, candidateVar.name, nil))
	}
}

// extractEnums implements the "extract enums" hook. Python has no enum
// grammar node, so a class is reclassified as an enum when its superclass
// list contains "Enum" (e.g. `class Color(Enum):`), matching how the
// language actually expresses enums.
func (c *extractCtx) extractEnums(root *astparse.Node, fe *FileExtraction) {
	for _, enumType := range c.cfg.EnumTypes {
		for _, n := range root.CollectByType(enumType) {
			name := extractName(n, c.source, c.cfg, c.language)
			if name == "" {
				continue
			}
			fe.Objects = append(fe.Objects, c.newObject(n, KindEnum, name, nil))
		}
	}

	if c.language == "python" {
		for _, classType := range c.cfg.ClassTypes {
			for _, n := range root.CollectByType(classType) {
				bases := n.ChildByType("argument_list")
				if bases == nil || !strings.Contains(bases.Content(c.source), "Enum") {
					continue
				}
				startLine := n.StartLine()
				for i, obj := range fe.Objects {
					if obj.Kind == KindClass && obj.StartLine == startLine {
						fe.Objects[i].Kind = KindEnum
					}
				}
			}
		}
	}
}

// collectMethods returns every method node under a class node, by node
// type, searching recursively (methods of nested classes are included).
// Go has no ClassTypes, so it is never called for Go.
func collectMethods(classNode *astparse.Node, cfg *astparse.LanguageConfig) []*astparse.Node {
	var methods []*astparse.Node
	for _, mt := range cfg.MethodTypes {
		methods = append(methods, classNode.CollectByType(mt)...)
	}
	return methods
}

// summaryDeclaration renders the declaration line, docstring, field
// declarations, and method signatures (without bodies) for a summary
// object, per spec.md §4.3.
func summaryDeclaration(n *astparse.Node, source []byte, methods []*astparse.Node, language string) string {
	var b strings.Builder
	content := n.Content(source)
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		b.WriteString(strings.TrimRight(content[:idx], "\r"))
	} else {
		b.WriteString(content)
	}
	b.WriteString("\n")
	if doc := extractDocComment(n, source, language); doc != "" {
		b.WriteString("    " + doc + "\n")
	}
	for _, bodyType := range []string{"block", "class_body"} {
		if body := n.ChildByType(bodyType); body != nil {
			for _, f := range body.Children {
				if f.Type == "public_field_definition" || f.Type == "field_definition" ||
					(f.Type == "expression_statement" && f.ChildByType("assignment") != nil) {
					b.WriteString("    " + strings.TrimSpace(f.Content(source)) + "\n")
				}
			}
		}
	}
	for _, m := range methods {
		sig := extractSignature(m, source, KindMethod, language)
		if sig != "" {
			b.WriteString("    ")
			b.WriteString(sig)
			b.WriteString("\n")
		}
	}
	return b.String()
}
