package extract

import (
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/astparse"
)

// extractImports implements the "IMPORTS" side of spec.md §4.3: collect
// every import statement's raw module path, to be normalized and resolved
// against the batch's file map by ResolveRelationships.
func (c *extractCtx) extractImports(root *astparse.Node, fe *FileExtraction) {
	for _, it := range c.cfg.ImportTypes {
		for _, n := range root.CollectByType(it) {
			path, alias := importPathAndAlias(n, c.source, c.language)
			if path == "" {
				continue
			}
			fe.Imports = append(fe.Imports, &Import{
				FilePath:   c.relativePath,
				ImportPath: path,
				Alias:      alias,
				Line:       n.StartLine(),
			})
		}
	}
}

func importPathAndAlias(n *astparse.Node, source []byte, language string) (path, alias string) {
	switch language {
	case "go":
		if str := firstStringLiteral(n, source); str != "" {
			path = str
		}
		if id := n.ChildByType("package_identifier"); id != nil {
			alias = id.Content(source)
		}
	case "typescript", "tsx", "javascript", "jsx":
		path = firstStringLiteral(n, source)
	case "python":
		if n.Type == "import_from_statement" {
			if mod := n.ChildByType("dotted_name"); mod != nil {
				path = mod.Content(source)
			}
		} else {
			if mod := n.ChildByType("dotted_name"); mod != nil {
				path = mod.Content(source)
			} else if mod := n.ChildByType("aliased_import"); mod != nil {
				if dn := mod.ChildByType("dotted_name"); dn != nil {
					path = dn.Content(source)
				}
			}
		}
	}
	return path, alias
}

func firstStringLiteral(n *astparse.Node, source []byte) string {
	for _, t := range []string{"interpreted_string_literal", "string", "string_fragment"} {
		if s := n.ChildByType(t); s != nil {
			return strings.Trim(s.Content(source), "\"'`")
		}
	}
	var found string
	n.Walk(func(cur *astparse.Node) bool {
		if found != "" {
			return false
		}
		if cur.Type == "interpreted_string_literal" || cur.Type == "string" {
			found = strings.Trim(cur.Content(source), "\"'`")
			return false
		}
		return true
	})
	return found
}

// normalizeModulePath turns an import path into the dotted form used to
// match it against the file map: slashes become dots, a trailing source
// extension is stripped (spec.md §4.3 "dots.for.slashes").
func normalizeModulePath(path string) string {
	path = strings.TrimSuffix(path, ".go")
	path = strings.TrimSuffix(path, ".py")
	path = strings.TrimSuffix(path, ".ts")
	path = strings.TrimSuffix(path, ".tsx")
	path = strings.TrimSuffix(path, ".js")
	path = strings.TrimSuffix(path, ".jsx")
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")
	return strings.ReplaceAll(path, "/", ".")
}

// extractReferencesAndCalls walks every extracted object's own source span
// and records CALLS candidates (callee identifiers under a call-expression
// node) and REFERENCES candidates (identifiers used elsewhere, excluding
// the object's own name).
func (c *extractCtx) extractReferencesAndCalls(root *astparse.Node, fe *FileExtraction) {
	for _, obj := range fe.Objects {
		objNode := findNodeByRange(root, obj.StartLine, obj.EndLine)
		if objNode == nil {
			continue
		}

		callNodeSet := make(map[*astparse.Node]bool)
		for _, ct := range c.cfg.CallTypes {
			for _, callNode := range objNode.CollectByType(ct) {
				callNodeSet[callNode] = true
				if name := calleeName(callNode, c.source, c.language); name != "" && name != obj.Name {
					fe.Candidates = append(fe.Candidates, &Candidate{
						Type: RelCalls, SourceID: obj.ID, SourceKind: obj.Kind,
						TargetName: name, Line: callNode.StartLine(),
					})
				}
			}
		}

		seenRef := make(map[string]bool)
		objNode.Walk(func(n *astparse.Node) bool {
			if n.Type != "identifier" && n.Type != "type_identifier" {
				return true
			}
			if insideCall(n, callNodeSet) {
				return true
			}
			name := n.Content(c.source)
			if name == "" || name == obj.Name || seenRef[name] {
				return true
			}
			seenRef[name] = true
			fe.Candidates = append(fe.Candidates, &Candidate{
				Type: RelReferences, SourceID: obj.ID, SourceKind: obj.Kind,
				TargetName: name, Line: n.StartLine(),
			})
			return true
		})
	}

	c.extractSuperclasses(root, fe)
}

// extractSuperclasses emits EXTENDS/IMPLEMENTS candidates for class and
// interface declarations, matched by name (spec.md §4.3).
func (c *extractCtx) extractSuperclasses(root *astparse.Node, fe *FileExtraction) {
	for _, obj := range fe.Objects {
		if obj.Kind != KindClass && obj.Kind != KindInterface && obj.Kind != KindSummary {
			continue
		}
		n := findNodeByRange(root, obj.StartLine, obj.EndLine)
		if n == nil {
			continue
		}
		for _, superName := range superclassNames(n, c.source, c.language) {
			fe.Candidates = append(fe.Candidates, &Candidate{
				Type: RelExtends, SourceID: obj.ID, SourceKind: obj.Kind,
				TargetName: superName, Line: obj.StartLine,
			})
		}
		for _, ifaceName := range interfaceNames(n, c.source, c.language) {
			fe.Candidates = append(fe.Candidates, &Candidate{
				Type: RelImplements, SourceID: obj.ID, SourceKind: obj.Kind,
				TargetName: ifaceName, Line: obj.StartLine,
			})
		}
	}
}

func calleeName(callNode *astparse.Node, source []byte, language string) string {
	if len(callNode.Children) == 0 {
		return ""
	}
	callee := callNode.Children[0]
	text := callee.Content(source)
	if idx := strings.LastIndexAny(text, ".:"); idx != -1 {
		text = text[idx+1:]
	}
	if idx := strings.IndexByte(text, '('); idx != -1 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func insideCall(n *astparse.Node, callNodeSet map[*astparse.Node]bool) bool {
	// This walk never tracks parent pointers, so approximate "inside a
	// call" by checking whether n is a call node's first child (the callee
	// slot); anything else under a call node is an argument, and arguments
	// can themselves be references.
	for call := range callNodeSet {
		if len(call.Children) > 0 && call.Children[0] == n {
			return true
		}
	}
	return false
}

func superclassNames(n *astparse.Node, source []byte, language string) []string {
	switch language {
	case "python":
		if arglist := n.ChildByType("argument_list"); arglist != nil {
			var out []string
			for _, c := range arglist.ChildrenByType("identifier") {
				out = append(out, c.Content(source))
			}
			return out
		}
	case "typescript", "tsx", "javascript", "jsx":
		if heritage := n.ChildByType("class_heritage"); heritage != nil {
			var out []string
			heritage.Walk(func(cur *astparse.Node) bool {
				if cur.Type == "identifier" {
					out = append(out, cur.Content(source))
				}
				return true
			})
			return out
		}
	}
	return nil
}

func interfaceNames(n *astparse.Node, source []byte, language string) []string {
	if language != "typescript" && language != "tsx" {
		return nil
	}
	if clause := n.ChildByType("class_heritage"); clause != nil {
		var out []string
		for _, impl := range clause.CollectByType("implements_clause") {
			impl.Walk(func(cur *astparse.Node) bool {
				if cur.Type == "type_identifier" {
					out = append(out, cur.Content(source))
				}
				return true
			})
		}
		return out
	}
	return nil
}

// findNodeByRange locates the smallest node whose 1-based line span
// exactly matches [start,end]; used to re-enter a node already identified
// by newObject without threading the *Node pointer through CodeObject.
func findNodeByRange(root *astparse.Node, start, end int) *astparse.Node {
	var best *astparse.Node
	root.Walk(func(n *astparse.Node) bool {
		if n.StartLine() == start && n.EndLine() == end {
			if best == nil || (n.EndByte-n.StartByte) < (best.EndByte-best.StartByte) {
				best = n
			}
		}
		return true
	})
	return best
}
