package pipeline

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/scanner"
)

// scannedFile pairs a scanner result with the two paths the rest of the
// pipeline keys off of.
type scannedFile struct {
	change.FileRef
	ContentType scanner.ContentType
	Language    string
}

// scan runs the Scan stage (spec.md §4.6): cascading .gitignore +
// .codecontextignore + scanner built-in defaults + per-file size limit,
// emitting separate code-file and document-file streams.
func (p *Pipeline) scan(ctx context.Context, rootDir string) (code, docs []scannedFile, err error) {
	ignorePatterns, err := loadCodecontextIgnore(rootDir)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: reading %s: %w", codecontextIgnoreFile, err)
	}

	maxFileSize := int64(p.cfg.MaxFileSizeMB) * 1024 * 1024
	if maxFileSize <= 0 {
		maxFileSize = scanner.DefaultMaxFileSize
	}

	opts := &scanner.ScanOptions{
		RootDir:          rootDir,
		ExcludePatterns:  ignorePatterns,
		RespectGitignore: true,
		Workers:          p.workers,
		MaxFileSize:      maxFileSize,
		Submodules:       &config.SubmoduleConfig{},
	}

	results, err := p.scanner.Scan(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: scan: %w", err)
	}

	for res := range results {
		if res.Error != nil {
			p.logf("scan: skipping file", "error", res.Error.Error())
			continue
		}
		f := res.File
		sf := scannedFile{
			FileRef: change.FileRef{
				AbsolutePath: f.AbsPath,
				RelativePath: f.Path,
			},
			ContentType: f.ContentType,
			Language:    f.Language,
		}
		switch f.ContentType {
		case scanner.ContentTypeCode:
			code = append(code, sf)
		case scanner.ContentTypeMarkdown, scanner.ContentTypeConfig:
			docs = append(docs, sf)
		default:
			// Plain text and anything else unrecognized: spec.md §4.6 only
			// names code and document streams, so unclassified text is
			// dropped rather than forced into either chunker.
		}
	}
	return code, docs, nil
}
