package extract

import (
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/astparse"
)

// extractName resolves the bare name of a declaration node, dispatching
// per language the same way the tree walks were hand-written for each
// grammar's identifier placement.
func extractName(n *astparse.Node, source []byte, cfg *astparse.LanguageConfig, language string) string {
	switch language {
	case "go":
		return extractGoName(n, source)
	case "typescript", "tsx":
		return extractTSName(n, source)
	case "javascript", "jsx":
		return extractJSName(n, source)
	case "python":
		return extractPythonName(n, source)
	default:
		if id := n.ChildByType("identifier"); id != nil {
			return id.Content(source)
		}
		return ""
	}
}

func extractGoName(n *astparse.Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		if id := n.ChildByType("identifier"); id != nil {
			return id.Content(source)
		}
	case "method_declaration":
		if id := n.ChildByType("field_identifier"); id != nil {
			return id.Content(source)
		}
	case "type_declaration":
		if spec := n.ChildByType("type_spec"); spec != nil {
			if id := spec.ChildByType("type_identifier"); id != nil {
				return id.Content(source)
			}
		}
	case "const_declaration":
		if spec := n.ChildByType("const_spec"); spec != nil {
			if id := spec.ChildByType("identifier"); id != nil {
				return id.Content(source)
			}
		}
	case "var_declaration":
		if spec := n.ChildByType("var_spec"); spec != nil {
			if id := spec.ChildByType("identifier"); id != nil {
				return id.Content(source)
			}
		}
	}
	return ""
}

func extractTSName(n *astparse.Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		if decl := n.ChildByType("variable_declarator"); decl != nil {
			if id := decl.ChildByType("identifier"); id != nil {
				return id.Content(source)
			}
		}
	}
	if id := n.ChildByType("identifier"); id != nil {
		return id.Content(source)
	}
	if id := n.ChildByType("type_identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}

func extractJSName(n *astparse.Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		if decl := n.ChildByType("variable_declarator"); decl != nil {
			if id := decl.ChildByType("identifier"); id != nil {
				return id.Content(source)
			}
		}
	}
	if id := n.ChildByType("identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}

func extractPythonName(n *astparse.Node, source []byte) string {
	if id := n.ChildByType("identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}

// extractDocComment returns the comment line immediately preceding n, or
// a Python docstring as the first statement of the body.
func extractDocComment(n *astparse.Node, source []byte, language string) string {
	if language == "python" {
		return extractPythonDocstring(n, source)
	}

	if n.StartPoint.Row == 0 {
		return ""
	}
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}
	prevLineEnd := lineStart - 1
	prevLineStart := prevLineEnd - 1
	for prevLineStart > 0 && source[prevLineStart-1] != '\n' {
		prevLineStart--
	}
	prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))
	if strings.HasPrefix(prevLine, "//") {
		return strings.TrimSpace(strings.TrimPrefix(prevLine, "//"))
	}
	return ""
}

func extractPythonDocstring(n *astparse.Node, source []byte) string {
	block := n.ChildByType("block")
	if block == nil || len(block.Children) == 0 {
		return ""
	}
	first := block.Children[0]
	if first.Type != "expression_statement" {
		return ""
	}
	str := first.ChildByType("string")
	if str == nil {
		return ""
	}
	text := str.Content(source)
	text = strings.Trim(text, "\"'")
	return strings.TrimSpace(text)
}

// extractSignature returns the declaration line (function/method) or
// header line (class/type) without the body, for embedding models to see
// the symbol's interface cheaply.
func extractSignature(n *astparse.Node, source []byte, kind ObjectKind, language string) string {
	content := n.Content(source)
	if content == "" {
		return ""
	}
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)

	switch language {
	case "go", "typescript", "tsx", "javascript", "jsx":
		if idx := strings.IndexByte(firstLine, '{'); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		return firstLine
	case "python":
		return firstLine
	}
	return firstLine
}

type namedNode struct {
	node *astparse.Node
	name string
}

// jsFunctionLikeVariables finds `const f = () => {}` / `const f = function(){}`
// declarations, which JS/TS grammars represent as variable declarations
// rather than function declarations.
func jsFunctionLikeVariables(root *astparse.Node, source []byte, cfg *astparse.LanguageConfig, language string) []namedNode {
	if language != "typescript" && language != "tsx" && language != "javascript" && language != "jsx" {
		return nil
	}
	var out []namedNode
	for _, declType := range []string{"lexical_declaration", "variable_declaration"} {
		for _, n := range root.CollectByType(declType) {
			decl := n.ChildByType("variable_declarator")
			if decl == nil {
				continue
			}
			var name string
			var hasFn bool
			for _, c := range decl.Children {
				if c.Type == "identifier" {
					name = c.Content(source)
				}
				if c.Type == "arrow_function" || c.Type == "function" || c.Type == "function_expression" {
					hasFn = true
				}
			}
			if name != "" && hasFn {
				out = append(out, namedNode{node: n, name: name})
			}
		}
	}
	return out
}
