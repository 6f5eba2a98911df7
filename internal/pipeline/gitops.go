package pipeline

import (
	"crypto/sha256"
	"encoding/hex"

	git "github.com/go-git/go-git/v5"
)

// currentCommitHash returns rootDir's current HEAD commit hash, or "" if
// rootDir is not a git repository (spec.md §4.6 Finalize stores this on
// IndexState for the startup reconciliation check).
func currentCommitHash(rootDir string) string {
	repo, err := git.PlainOpenWithOptions(rootDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// hashRootDir returns a deterministic project id for rootDir: the first 16
// hex characters of its SHA-256, the same truncated-hash scheme the
// teacher's internal/index/runner.go hashString uses for project ids.
func hashRootDir(rootDir string) string {
	h := sha256.Sum256([]byte(rootDir))
	return hex.EncodeToString(h[:])[:16]
}
