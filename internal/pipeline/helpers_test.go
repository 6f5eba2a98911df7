package pipeline

import (
	"io"
	"log/slog"

	"github.com/Aman-CERP/amanmcp/internal/change"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func refFor(absolutePath, relativePath string) change.FileRef {
	return change.FileRef{AbsolutePath: absolutePath, RelativePath: relativePath}
}
