package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectIDDeterministic(t *testing.T) {
	a := ObjectID("m.py", "f", "method", 2, 3)
	b := ObjectID("m.py", "f", "method", 2, 3)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestObjectIDDistinctInputs(t *testing.T) {
	a := ObjectID("m.py", "f", "method", 2, 3)
	b := ObjectID("m.py", "g", "method", 2, 3)
	assert.NotEqual(t, a, b)
}

func TestDocIDDeterministic(t *testing.T) {
	a := DocID("README.md", "markdown", 0)
	b := DocID("README.md", "markdown", 0)
	assert.Equal(t, a, b)
	c := DocID("README.md", "markdown", 1)
	assert.NotEqual(t, a, c)
}

func TestRelationshipIDDeterministic(t *testing.T) {
	a := RelationshipID("src1", "tgt1", "CALLS")
	b := RelationshipID("src1", "tgt1", "CALLS")
	assert.Equal(t, a, b)

	inverse := RelationshipID("tgt1", "src1", "CALLED_BY")
	assert.NotEqual(t, a, inverse)
}

func TestFileChecksumMatchesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	got, err := FileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, ContentChecksum([]byte("hello world")), got)
}

func TestFileChecksumMissingFile(t *testing.T) {
	_, err := FileChecksum("/does/not/exist/at/all.go")
	assert.Error(t, err)
}

func TestStateKeyIDStable(t *testing.T) {
	a := StateKeyID("index_state")
	b := StateKeyID("index_state")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, StateKeyID("checksum_foo.go"))
}

func TestCollectionIDDeterministic(t *testing.T) {
	a := CollectionID("/abs/path/to/repo")
	b := CollectionID("/abs/path/to/repo")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
