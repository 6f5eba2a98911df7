package pipeline

import (
	"os"

	"github.com/Aman-CERP/amanmcp/internal/docchunk"
)

// chunkDocuments runs C4's chunkers over one chunk of document files,
// dispatching by detected language the way the Scan stage classified them
// (spec.md §4.6 "document-file stream").
func (p *Pipeline) chunkDocuments(files []scannedFile) []*docchunk.DocumentNode {
	var nodes []*docchunk.DocumentNode
	for _, f := range files {
		content, err := os.ReadFile(f.AbsolutePath)
		if err != nil {
			p.logf("chunk: skipping file", "path", f.RelativePath, "error", err.Error())
			continue
		}

		var fileNodes []*docchunk.DocumentNode
		switch f.Language {
		case "markdown", "rst":
			fileNodes = p.markdownChunker.Chunk(f.RelativePath, content)
		case "yaml", "toml":
			fileNodes, err = p.configChunker.ChunkYAML(f.RelativePath, content)
		case "json":
			fileNodes, err = p.configChunker.ChunkJSON(f.RelativePath, content)
		case "properties":
			fileNodes, err = p.configChunker.ChunkProperties(f.RelativePath, content)
		default:
			// xml/ini/dockerfile/makefile and anything else classified as
			// ContentTypeConfig by the scanner but not one of the three
			// structured formats the config chunker understands: treat as
			// a single unstructured markdown-style node so it is still
			// searchable instead of silently dropped.
			fileNodes = p.markdownChunker.Chunk(f.RelativePath, content)
		}
		if err != nil {
			p.logf("chunk: parse failed", "path", f.RelativePath, "error", err.Error())
			continue
		}

		for _, n := range fileNodes {
			n.AbsolutePath = f.AbsolutePath
		}
		nodes = append(nodes, fileNodes...)
	}
	return nodes
}
