package hashing

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFastHash_WholeFileBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", []byte("hello world"))
	b := writeFile(t, dir, "b.bin", []byte("hello world"))
	c := writeFile(t, dir, "c.bin", []byte("hello worlD"))

	ha, err := FastHash(a)
	require.NoError(t, err)
	hb, err := FastHash(b)
	require.NoError(t, err)
	hc, err := FastHash(c)
	require.NoError(t, err)

	require.Equal(t, ha, hb)
	require.NotEqual(t, ha, hc)
	require.Contains(t, ha, "fast1:")
}

// TestFastHash_CollisionAboveThreshold exercises end-to-end scenario 1
// from the spec: two files whose first/last 1MiB windows and size match
// but whose middles differ must share a fast_hash but differ in
// full_hash.
func TestFastHash_CollisionAboveThreshold(t *testing.T) {
	dir := t.TempDir()

	size := FastHashThreshold + 1024
	mkFile := func(middleByte byte) []byte {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = byte(i % 251)
		}
		mid := size / 2
		buf[mid] = middleByte
		return buf
	}

	contentA := mkFile(0x01)
	contentB := mkFile(0x02)
	// keep head/tail windows identical across the two files
	copy(contentB[:SampleWindow], contentA[:SampleWindow])
	copy(contentB[len(contentB)-SampleWindow:], contentA[len(contentA)-SampleWindow:])

	a := writeFile(t, dir, "a.bin", contentA)
	b := writeFile(t, dir, "b.bin", contentB)

	require.False(t, bytes.Equal(contentA, contentB))

	fa, err := FastHash(a)
	require.NoError(t, err)
	fb, err := FastHash(b)
	require.NoError(t, err)
	require.Equal(t, fa, fb, "fast hash must collide on identical head/tail/size")

	Fa, err := FullHash(a)
	require.NoError(t, err)
	Fb, err := FullHash(b)
	require.NoError(t, err)
	require.NotEqual(t, Fa, Fb, "full hash must distinguish differing middles")
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", []byte("payload"))

	fast, err := FastHash(a)
	require.NoError(t, err)
	ok, err := Verify(a, fast)
	require.NoError(t, err)
	require.True(t, ok)

	full, err := FullHash(a)
	require.NoError(t, err)
	ok, err = Verify(a, full)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSizeDurationFingerprint_Distinct(t *testing.T) {
	require.NotEqual(t, SizeDurationFingerprint(100, 2000), SizeDurationFingerprint(100, 2001))
}
