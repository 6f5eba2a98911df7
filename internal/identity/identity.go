// Package identity provides deterministic, content-derived identifiers and
// checksums for code objects, document nodes, and relationships.
//
// Every function here is pure except FileChecksum, which reads from disk.
// Identical inputs always produce identical ids: this is what lets a
// re-indexing run collapse onto the same entity instead of duplicating it.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hexDigest returns the full hex-encoded SHA-256 of the given parts joined
// with ":".
func hexDigest(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte(":"))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hex32 truncates a hex digest to 32 characters, matching spec.md's
// "hex32(sha256(...))" deterministic id format.
func hex32(parts ...string) string {
	full := hexDigest(parts...)
	return full[:32]
}

// ContentChecksum returns the full SHA-256 hex digest of raw bytes.
func ContentChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileChecksum returns the whole-file SHA-256 hex digest for path.
//
// Pathological inputs (symlinks, unreadable files) surface as an *os.PathError
// wrapped error; the caller (C5) decides whether to treat the file as changed.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("identity: read %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("identity: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ObjectID computes the deterministic id of a CodeObject.
//
//	hex32( sha256( relative_path ":" name ":" kind ":" start ":" end ) )
func ObjectID(relativePath, name, kind string, start, end int) string {
	return hex32(relativePath, name, kind, fmt.Sprintf("%d", start), fmt.Sprintf("%d", end))
}

// DocID computes the deterministic id of a DocumentNode.
//
//	hex32( sha256( relative_path ":" kind ":" chunk_index ) )
func DocID(relativePath, kind string, chunkIndex int) string {
	return hex32(relativePath, kind, fmt.Sprintf("%d", chunkIndex))
}

// RelationshipID computes the deterministic id of a Relationship edge.
//
//	hex32( sha256( source_id ":" target_id ":" type ) )
func RelationshipID(sourceID, targetID, relType string) string {
	return hex32(sourceID, targetID, relType)
}

// StateKeyID hashes a state key into the 64-bit id space synthetic state
// points live in (spec.md §4.7: "a 64-bit hash of 'state_' + key").
func StateKeyID(key string) uint64 {
	full := hexDigest("state_" + key)
	// First 16 hex chars = 64 bits, taken from the same digest for stability.
	var v uint64
	for i := 0; i < 16; i++ {
		v <<= 4
		c := full[i]
		switch {
		case c >= '0' && c <= '9':
			v |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint64(c-'a') + 10
		}
	}
	return v
}

// CollectionID derives the project's collection id from its canonical
// (absolute, cleaned) repository path.
func CollectionID(canonicalRepoPath string) string {
	return hex32(canonicalRepoPath)
}
