package pipeline

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// codecontextIgnoreFile is the project-local ignore file spec.md §4.6's
// Scan step layers on top of .gitignore and the scanner's built-in
// defaults.
const codecontextIgnoreFile = ".codecontextignore"

// loadCodecontextIgnore reads rootDir/.codecontextignore, one glob pattern
// per line, skipping blank lines and #-comments. A missing file is not an
// error: it simply contributes no patterns.
func loadCodecontextIgnore(rootDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(rootDir, codecontextIgnoreFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
