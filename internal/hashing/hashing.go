// Package hashing implements the content-address primitives over files:
// a cheap locality-biased fast hash for dedup-candidate lookup and a
// streaming full hash that is the identity oracle.
package hashing

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"

	"dadcam.systems/core/internal/dadcamerr"
)

const (
	// FastHashThreshold is the file-size cutoff below which fast_hash
	// hashes the entire file instead of sampling head/tail windows.
	FastHashThreshold = 2 * 1024 * 1024
	// SampleWindow is the size of the head/tail window sampled for
	// files above FastHashThreshold.
	SampleWindow = 1024 * 1024
	// ChunkSize is the streaming read/write chunk used by full_hash and
	// the copy engine; callers must never buffer more than one chunk.
	ChunkSize = 1024 * 1024

	fastHashScheme = "first_last_size_v1"
)

// FastHash computes "fast1:<hex>" per the first_last_size_v1 scheme:
// whole-file hash if size <= FastHashThreshold, else
// first_1MiB || last_1MiB || size_le_u64.
func FastHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", dadcamerr.NewIOError(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", dadcamerr.NewIOError(path, err)
	}
	size := info.Size()

	h := blake3.New(32, nil)

	if size <= FastHashThreshold {
		if _, err := io.Copy(h, f); err != nil {
			return "", dadcamerr.NewIOError(path, err)
		}
	} else {
		head := make([]byte, SampleWindow)
		if _, err := io.ReadFull(f, head); err != nil {
			return "", dadcamerr.NewIOError(path, err)
		}
		h.Write(head)

		tail := make([]byte, SampleWindow)
		if _, err := f.ReadAt(tail, size-SampleWindow); err != nil {
			return "", dadcamerr.NewIOError(path, err)
		}
		h.Write(tail)

		var sizeBuf [8]byte
		binary.LittleEndian.PutUint64(sizeBuf[:], uint64(size))
		h.Write(sizeBuf[:])
	}

	return "fast1:" + hex.EncodeToString(h.Sum(nil)), nil
}

// FullHash computes "blake3:full:<hex>" by streaming the entire file.
func FullHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", dadcamerr.NewIOError(path, err)
	}
	defer f.Close()
	return FullHashReader(f)
}

// FullHashReader streams r in ChunkSize-bounded reads and returns the
// "blake3:full:<hex>" digest. FullHash uses it for files.
func FullHashReader(r io.Reader) (string, error) {
	h := blake3.New(32, nil)
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("stream hash: %w", err)
	}
	return "blake3:full:" + hex.EncodeToString(h.Sum(nil)), nil
}

// SizeDurationFingerprint returns the opaque relink fingerprint for a
// clip's (size, duration) pair.
func SizeDurationFingerprint(size int64, durationMS int64) string {
	return fmt.Sprintf("sizedur1:%d:%d", size, durationMS)
}

// Verify streams path and recomputes the scheme implied by storedHash's
// tag, comparing in constant time.
func Verify(path string, storedHash string) (bool, error) {
	var computed string
	var err error

	switch {
	case len(storedHash) >= 6 && storedHash[:6] == "fast1:":
		computed, err = FastHash(path)
	case len(storedHash) >= 12 && storedHash[:12] == "blake3:full:":
		computed, err = FullHash(path)
	default:
		return false, fmt.Errorf("unsupported hash scheme in %q", storedHash)
	}
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1, nil
}

// Scheme returns the scheme tag embedded in a content-address string.
func Scheme(hash string) string {
	switch {
	case len(hash) >= 6 && hash[:6] == "fast1:":
		return fastHashScheme
	case len(hash) >= 12 && hash[:12] == "blake3:full:":
		return "blake3_full_v1"
	default:
		return "unknown"
	}
}
