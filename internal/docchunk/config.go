package docchunk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigOptions configures the hierarchical adaptive config chunker
// (spec.md §4.4).
type ConfigOptions struct {
	TargetTokens int // default 512
	MinTokens    int // default 100
	MaxTokens    int // default 1024
	MaxDepth     int // default 4
}

const tokensPerChar = 4

func DefaultConfigOptions() ConfigOptions {
	return ConfigOptions{TargetTokens: 512, MinTokens: 100, MaxTokens: 1024, MaxDepth: 4}
}

// ConfigChunker implements the hierarchical adaptive strategy spec.md
// §4.4 describes for YAML, JSON, and Java-style .properties files.
type ConfigChunker struct {
	opts ConfigOptions
}

func NewConfigChunker(opts ConfigOptions) *ConfigChunker {
	if opts.TargetTokens == 0 {
		opts = DefaultConfigOptions()
	}
	return &ConfigChunker{opts: opts}
}

type configChunk struct {
	path      string
	key       string
	content   string
	depth     int
	tokens    int
	keys      []string
	envRefs   []string
	oversized bool
}

// ChunkYAML chunks YAML content, including multi-document streams (each
// document is chunked independently and concatenated).
func (c *ConfigChunker) ChunkYAML(relativePath string, content []byte) ([]*DocumentNode, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	var chunks []*configChunk
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if err != nil {
			break
		}
		for _, k := range sortedKeys(doc) {
			chunks = append(chunks, c.chunkSection(k, doc[k], 1, "")...)
		}
	}
	return c.finish(relativePath, chunks, "yaml", string(content)), nil
}

// ChunkJSON chunks a single JSON document.
func (c *ConfigChunker) ChunkJSON(relativePath string, content []byte) ([]*DocumentNode, error) {
	var doc map[string]any
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("docchunk: invalid json in %s: %w", relativePath, err)
	}
	var chunks []*configChunk
	for _, k := range sortedKeys(doc) {
		chunks = append(chunks, c.chunkSection(k, doc[k], 1, "")...)
	}
	return c.finish(relativePath, chunks, "json", string(content)), nil
}

// ChunkProperties chunks a Java-style .properties file: lines are grouped
// by the first dot-separated segment of their key, and preceding comment
// blocks attach to the next group (spec.md §4.4).
func (c *ConfigChunker) ChunkProperties(relativePath string, content []byte) ([]*DocumentNode, error) {
	lines := strings.Split(string(content), "\n")
	groups := make(map[string][]string)
	var order []string
	var pendingComments []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			pendingComments = append(pendingComments, line)
			continue
		}
		eq := strings.IndexAny(trimmed, "=:")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:eq])
		group := key
		if dot := strings.IndexByte(key, '.'); dot >= 0 {
			group = key[:dot]
		}
		if _, ok := groups[group]; !ok {
			order = append(order, group)
		}
		groups[group] = append(groups[group], strings.Join(pendingComments, "\n"), line)
		pendingComments = nil
	}

	var chunks []*configChunk
	for _, group := range order {
		body := strings.TrimSpace(strings.Join(groups[group], "\n"))
		chunks = append(chunks, &configChunk{
			path: group, key: group, content: body, depth: 1,
			tokens: len(body) / tokensPerChar, keys: []string{group},
			envRefs: detectEnvRefs(body),
		})
	}
	return c.finish(relativePath, chunks, "properties", string(content)), nil
}

// chunkSection recursively chunks a section with adaptive splitting,
// mirroring the original implementation this spec was distilled from:
// fits target -> emit as-is; too big and is a map and under max depth ->
// recurse; otherwise emit as one chunk, flagged oversized past max.
func (c *ConfigChunker) chunkSection(key string, value any, depth int, parentPath string) []*configChunk {
	currentPath := key
	if parentPath != "" {
		currentPath = parentPath + "." + key
	}

	content := formatSection(key, value)
	tokens := len(content) / tokensPerChar
	keys := flattenKeys(value, currentPath)
	envRefs := detectEnvRefs(content)

	if tokens <= c.opts.TargetTokens {
		return []*configChunk{{path: currentPath, key: key, content: content, depth: depth, tokens: tokens, keys: keys, envRefs: envRefs}}
	}

	if m, ok := value.(map[string]any); ok && depth < c.opts.MaxDepth {
		var sub []*configChunk
		for _, k := range sortedKeys(m) {
			sub = append(sub, c.chunkSection(k, m[k], depth+1, currentPath)...)
		}
		if len(sub) > 1 {
			return sub
		}
	}

	return []*configChunk{{
		path: currentPath, key: key, content: content, depth: depth, tokens: tokens,
		keys: keys, envRefs: envRefs, oversized: tokens > c.opts.MaxTokens,
	}}
}

// optimize merges adjacent sub-threshold chunks: a buffer accumulates
// until it reaches MinTokens, and a trailing under-sized buffer may fold
// into the previous chunk if the sum stays under MaxTokens.
func (c *ConfigChunker) optimize(chunks []*configChunk) []*configChunk {
	if len(chunks) == 0 {
		return nil
	}
	var out []*configChunk
	var buf []*configChunk
	bufTokens := 0

	flushBuf := func() {
		if len(buf) > 0 {
			out = append(out, mergeChunks(buf))
			buf = nil
			bufTokens = 0
		}
	}

	for _, ch := range chunks {
		if ch.tokens < c.opts.MinTokens {
			buf = append(buf, ch)
			bufTokens += ch.tokens
			if bufTokens >= c.opts.MinTokens {
				flushBuf()
			}
			continue
		}
		flushBuf()
		out = append(out, ch)
	}

	if len(buf) > 0 {
		if len(out) > 0 && out[len(out)-1].tokens+bufTokens < c.opts.MaxTokens {
			last := out[len(out)-1]
			out = out[:len(out)-1]
			buf = append([]*configChunk{last}, buf...)
		}
		out = append(out, mergeChunks(buf))
	}
	return out
}

func mergeChunks(chunks []*configChunk) *configChunk {
	if len(chunks) == 1 {
		return chunks[0]
	}
	var contents, paths, keysList []string
	var envRefs []string
	tokens := 0
	for _, c := range chunks {
		contents = append(contents, c.content)
		paths = append(paths, c.path)
		keysList = append(keysList, c.keys...)
		envRefs = append(envRefs, c.envRefs...)
		tokens += c.tokens
	}
	return &configChunk{
		path: strings.Join(paths, " + "), key: strings.Join(paths, " + "),
		content: strings.Join(contents, "\n\n"), depth: chunks[0].depth,
		tokens: tokens, keys: dedupe(keysList), envRefs: dedupe(envRefs),
	}
}

func (c *ConfigChunker) finish(relativePath string, chunks []*configChunk, format, fullText string) []*DocumentNode {
	chunks = c.optimize(chunks)
	nodes := make([]*DocumentNode, 0, len(chunks))
	for i, ch := range chunks {
		n := newNode(relativePath, KindConfig, i, ch.content)
		n.TotalChunks = len(chunks)
		n.Title = ch.path
		n.Format = format
		n.FlattenedKeys = ch.keys
		n.EnvRefs = ch.envRefs
		n.NestingDepth = ch.depth
		n.Oversized = ch.oversized
		n.StartLine, n.EndLine = lineRange(fullText, ch.content)
		nodes = append(nodes, n)
	}
	return nodes
}

// formatSection renders a section as searchable text: YAML-ish for maps,
// a bulleted summary for lists, "key: value" for scalars.
func formatSection(key string, value any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Configuration: %s\n\n", key)

	switch v := value.(type) {
	case map[string]any:
		out, _ := yaml.Marshal(map[string]any{key: v})
		b.Write(out)
		if keys := flattenKeys(v, key); len(keys) > 0 {
			fmt.Fprintf(&b, "\nAvailable settings: %s\n", strings.Join(keys, ", "))
		}
	case []any:
		fmt.Fprintf(&b, "%s:\n", key)
		if len(v) <= 10 {
			for _, item := range v {
				fmt.Fprintf(&b, "  - %v\n", item)
			}
		} else {
			fmt.Fprintf(&b, "  [%d items]\n", len(v))
		}
	default:
		fmt.Fprintf(&b, "%s: %v\n", key, v)
	}
	return b.String()
}

// flattenKeys returns every dotted key path under value.
func flattenKeys(value any, prefix string) []string {
	m, ok := value.(map[string]any)
	if !ok {
		return []string{prefix}
	}
	var out []string
	for _, k := range sortedKeys(m) {
		out = append(out, flattenKeys(m[k], prefix+"."+k)...)
	}
	return out
}

var envRefPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*|%[A-Za-z_][A-Za-z0-9_]*%`)

// detectEnvRefs finds ${VAR}, $VAR, and %VAR% environment-variable
// references in config content (spec.md §4.4).
func detectEnvRefs(content string) []string {
	matches := envRefPattern.FindAllString(content, -1)
	return dedupe(matches)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
