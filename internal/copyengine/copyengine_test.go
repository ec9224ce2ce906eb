package copyengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dadcam.systems/core/internal/dadcamerr"
)

func TestCopyWithVerify_Success(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("clip bytes"), 0o644))

	dest := filepath.Join(dir, "dest", "source.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))

	res, err := CopyWithVerify(src, dest)
	require.NoError(t, err)
	require.Equal(t, int64(len("clip bytes")), res.BytesCopied)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "clip bytes", string(got))

	// no leftover temp artifacts
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestCopyWithVerify_ReadBackMismatch exercises end-to-end scenario 2:
// a corrupted temp file must fail verification, leave no final file,
// and remove the temp artifact.
func TestCopyWithVerify_ReadBackMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("clip bytes"), 0o644))

	destDir := filepath.Join(dir, "dest")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	dest := filepath.Join(destDir, "source.mp4")

	orig := corruptAfterWrite
	corruptAfterWrite = func(tempPath string) {
		f, err := os.OpenFile(tempPath, os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		f.WriteAt([]byte{'X'}, 0)
	}
	t.Cleanup(func() { corruptAfterWrite = orig })

	_, err := CopyWithVerify(src, dest)
	require.Error(t, err)
	var verifyErr *dadcamerr.VerificationFailedError
	require.ErrorAs(t, err, &verifyErr)

	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr), "no final file should exist after a mismatch")

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Empty(t, entries, "temp artifact should be removed after a mismatch")
}

func TestUniquePath_ConflictSuffix(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	p, err := UniquePath(existing)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "clip_1.mp4"), p)
}
