package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFileSHA256_KnownVector checks the digest against a published SHA-256 value.
func TestFileSHA256_KnownVector(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "abc.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	got, err := FileSHA256(path)
	require.NoError(t, err)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

// TestFileSHA256_Sensitivity ensures a single-byte mutation changes the digest.
func TestFileSHA256_Sensitivity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	original := filepath.Join(dir, "original.bin")
	mutated := filepath.Join(dir, "mutated.bin")

	require.NoError(t, os.WriteFile(original, []byte("configs-archive-contents"), 0o644))
	require.NoError(t, os.WriteFile(mutated, []byte("configs-archive-content!"), 0o644))

	first, err := FileSHA256(original)
	require.NoError(t, err)

	again, err := FileSHA256(original)
	require.NoError(t, err)
	require.Equal(t, first, again)

	second, err := FileSHA256(mutated)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

// TestFileSHA256_MissingFile ensures missing input surfaces as an error.
func TestFileSHA256_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := FileSHA256(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}
