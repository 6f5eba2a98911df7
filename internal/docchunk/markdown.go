package docchunk

import (
	"regexp"
	"strings"
)

// MarkdownOptions configures the heading-based markdown chunker
// (spec.md §4.4).
type MarkdownOptions struct {
	MaxHeadingLevel int // default 3
	ChunkSize       int // default 4096 characters
	Overlap         int // default 400 characters
}

func DefaultMarkdownOptions() MarkdownOptions {
	return MarkdownOptions{MaxHeadingLevel: 3, ChunkSize: 4096, Overlap: 400}
}

// separatorHierarchy is the recursive sub-split order spec.md §4.4 names.
var separatorHierarchy = []string{"\n\n", "\n", " ", ""}

var (
	headingPattern  = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	inlineCodeRe    = regexp.MustCompile("`([^`\n]+)`")
	fencedCodeRe    = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\n(.*?)```")
	sourceLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+\.(go|py|ts|tsx|js|jsx|java|rb|rs|c|cpp|h|hpp))\)`)
)

// MarkdownChunker splits markdown into heading-delimited DocumentNodes,
// recursively sub-splitting oversized sections.
type MarkdownChunker struct {
	opts MarkdownOptions
}

func NewMarkdownChunker(opts MarkdownOptions) *MarkdownChunker {
	if opts.ChunkSize == 0 {
		opts = DefaultMarkdownOptions()
	}
	return &MarkdownChunker{opts: opts}
}

type heading struct {
	level   int
	title   string
	path    string
	content string
	// startLine is the 0-indexed line within the original file where
	// this section's content begins.
	startLine int
}

// Chunk splits markdown content into DocumentNodes.
func (m *MarkdownChunker) Chunk(relativePath string, content []byte) []*DocumentNode {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sections := m.parseSections(text)
	var nodes []*DocumentNode
	for _, sec := range sections {
		nodes = append(nodes, m.sectionToNodes(relativePath, sec, text)...)
	}

	total := len(nodes)
	for i, n := range nodes {
		n.TotalChunks = total
		n.ChunkIndex = i
		n.Kind = KindMarkdown
		n.Language = "markdown"
	}
	return nodes
}

func (m *MarkdownChunker) parseSections(text string) []*heading {
	lines := strings.Split(text, "\n")
	stack := make([]string, 7)
	var sections []*heading
	var cur *heading
	var body strings.Builder

	flush := func() {
		if cur != nil {
			cur.content = body.String()
			sections = append(sections, cur)
			body.Reset()
		}
	}

	for i, line := range lines {
		if match := headingPattern.FindStringSubmatch(line); match != nil {
			level := len(match[1])
			if level > m.opts.MaxHeadingLevel {
				// Below the split threshold: keep it as body text of the
				// enclosing section rather than starting a new node.
				body.WriteString(line)
				body.WriteString("\n")
				continue
			}
			flush()
			title := strings.TrimSpace(match[2])
			stack[level] = title
			for l := level + 1; l < len(stack); l++ {
				stack[l] = ""
			}
			var parts []string
			for l := 1; l <= level; l++ {
				if stack[l] != "" {
					parts = append(parts, stack[l])
				}
			}
			cur = &heading{level: level, title: title, path: strings.Join(parts, " > "), startLine: i}
		} else if cur != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	if len(sections) == 0 {
		sections = []*heading{{title: "", path: "", content: text, startLine: 0}}
	}
	return sections
}

func (m *MarkdownChunker) sectionToNodes(relativePath string, sec *heading, fullText string) []*DocumentNode {
	content := strings.TrimRight(sec.content, "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var nodes []*DocumentNode
	if len(content) <= m.opts.ChunkSize {
		nodes = append(nodes, m.buildNode(relativePath, sec, content, fullText))
	} else {
		for _, piece := range recursiveSplit(content, separatorHierarchy, m.opts.ChunkSize, m.opts.Overlap) {
			nodes = append(nodes, m.buildNode(relativePath, sec, piece, fullText))
		}
	}
	return nodes
}

func (m *MarkdownChunker) buildNode(relativePath string, sec *heading, content, fullText string) *DocumentNode {
	n := newNode(relativePath, KindMarkdown, 0, content)
	n.Title = sec.title
	n.StartLine, n.EndLine = lineRange(fullText, content)
	n.RelatedCode = extractRelatedCode(content)
	return n
}

// lineRange finds content's 1-based [start,end] line range by substring
// search back into the original text, per spec.md §4.4.
func lineRange(fullText, content string) (int, int) {
	idx := strings.Index(fullText, content)
	if idx < 0 {
		return 1, strings.Count(content, "\n") + 1
	}
	start := strings.Count(fullText[:idx], "\n") + 1
	end := start + strings.Count(content, "\n")
	return start, end
}

// recursiveSplit sub-splits text using the next available separator,
// merging pieces back up to at most chunkSize with the given overlap,
// recursing into finer separators only where a piece still overflows.
func recursiveSplit(text string, separators []string, chunkSize, overlap int) []string {
	if len(text) <= chunkSize || len(separators) == 0 {
		return []string{text}
	}
	sep := separators[0]
	var parts []string
	if sep == "" {
		for i := 0; i < len(text); i += chunkSize {
			end := i + chunkSize
			if end > len(text) {
				end = len(text)
			}
			parts = append(parts, text[i:end])
		}
		return parts
	}

	raw := strings.Split(text, sep)
	var merged []string
	var buf strings.Builder
	for _, r := range raw {
		if buf.Len() > 0 && buf.Len()+len(sep)+len(r) > chunkSize {
			merged = append(merged, buf.String())
			buf.Reset()
			if overlap > 0 && len(merged) > 0 {
				tail := merged[len(merged)-1]
				if len(tail) > overlap {
					tail = tail[len(tail)-overlap:]
				}
				buf.WriteString(tail)
				buf.WriteString(sep)
			}
		}
		if buf.Len() > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(r)
	}
	if buf.Len() > 0 {
		merged = append(merged, buf.String())
	}

	var out []string
	for _, piece := range merged {
		if len(piece) > chunkSize {
			out = append(out, recursiveSplit(piece, separators[1:], chunkSize, overlap)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

// extractRelatedCode pulls inline backtick expressions, fenced code
// blocks (with language), and source-file links out of prose content
// (spec.md §4.4).
func extractRelatedCode(content string) []RelatedCode {
	var out []RelatedCode
	for _, m := range fencedCodeRe.FindAllStringSubmatch(content, -1) {
		out = append(out, RelatedCode{Content: strings.TrimSpace(m[2]), Language: m[1]})
	}
	for _, m := range inlineCodeRe.FindAllStringSubmatch(content, -1) {
		out = append(out, RelatedCode{Content: m[1]})
	}
	for _, m := range sourceLinkRe.FindAllStringSubmatch(content, -1) {
		out = append(out, RelatedCode{Content: m[2], IsLink: true})
	}
	return out
}
