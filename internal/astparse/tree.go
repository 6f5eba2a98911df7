package astparse

// Tree is a language-neutral parse tree: a thin, detached copy of the
// tree-sitter tree so callers never hold a reference to the underlying
// tree-sitter C buffers after Parse returns.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string

	// ValidRatio is 1 - error_nodes/total_nodes (spec.md §4.2).
	ValidRatio float64
	// Partial is true when the tree was returned despite containing error
	// nodes (valid_ratio >= partial_parse_threshold).
	Partial bool
}

// Point is a 0-indexed row/column position, matching tree-sitter's own
// convention; callers needing 1-based line numbers use Node helpers below.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a language-neutral AST node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	// HasError reports whether this node or any descendant is a syntax
	// error; true for every ancestor of an error node, not just the error
	// node itself.
	HasError bool
	// IsMissing reports whether the parser synthesized this node to
	// recover from a missing required token.
	IsMissing bool
}

// StartLine returns the node's 1-based start line.
func (n *Node) StartLine() int { return int(n.StartPoint.Row) + 1 }

// EndLine returns the node's 1-based end line.
func (n *Node) EndLine() int { return int(n.EndPoint.Row) + 1 }

// Content returns the node's source text.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// ChildByType returns the first direct child of the given type.
func (n *Node) ChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// ChildrenByType returns all direct children of the given type.
func (n *Node) ChildrenByType(nodeType string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == nodeType {
			out = append(out, c)
		}
	}
	return out
}

// CollectByType recursively collects every descendant node (including n
// itself) of the given type.
func (n *Node) CollectByType(nodeType string) []*Node {
	var out []*Node
	n.Walk(func(cur *Node) bool {
		if cur.Type == nodeType {
			out = append(out, cur)
		}
		return true
	})
	return out
}

// Walk traverses the tree depth-first, pre-order. fn returning false skips
// the current node's children (but walking continues at siblings).
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// countNodes returns (total, errorNodes) for computing valid_ratio.
// errorNodes counts only nodes that are themselves a parse error (type
// "ERROR") or a synthesized missing-token node, not every ancestor of one:
// HasError is true for a node's entire ancestor chain up to the root, so
// counting on that would inflate errorNodes by the chain's depth for a
// single syntax error.
func countNodes(n *Node) (total, errs int) {
	if n == nil {
		return 0, 0
	}
	total = 1
	if n.Type == "ERROR" || n.IsMissing {
		errs = 1
	}
	for _, c := range n.Children {
		ct, ce := countNodes(c)
		total += ct
		errs += ce
	}
	return total, errs
}
