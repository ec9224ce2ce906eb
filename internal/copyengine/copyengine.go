// Package copyengine implements the streaming, crash-safe,
// read-back-verified copy primitive used by the ingest pipeline.
package copyengine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"dadcam.systems/core/internal/dadcamerr"
	"dadcam.systems/core/internal/hashing"
)

const tempFilePrefix = ".dadcam-tmp-"

// corruptAfterWrite is overridden in tests to simulate disk corruption
// between the write pass and the read-back verification pass.
var corruptAfterWrite = func(tempPath string) {}

// Result is the outcome of a verified copy.
type Result struct {
	SourceHash string
	BytesCopied int64
}

// CopyWithVerify copies source into dest (which must not yet exist) via
// a temp file in dest's directory, hashing while writing, then
// re-reading dest to confirm a byte-exact transfer before the final
// atomic rename. See spec §4.2 for the full step order.
func CopyWithVerify(source, dest string) (*Result, error) {
	srcFile, err := os.Open(source)
	if err != nil {
		return nil, dadcamerr.NewIOError(source, err)
	}
	defer srcFile.Close()

	destParent := filepath.Dir(dest)
	tempPath := filepath.Join(destParent, tempFilePrefix+uuid.NewString())

	sourceHash, written, err := streamCopyAndHash(srcFile, tempPath)
	if err != nil {
		os.Remove(tempPath)
		return nil, err
	}

	// Test-only hook: lets tests simulate on-disk corruption of the temp
	// file between the write and the read-back verification pass.
	corruptAfterWrite(tempPath)

	destHash, err := hashing.FullHash(tempPath)
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("read-back hash of %s: %w", tempPath, err)
	}

	if sourceHash != destHash {
		os.Remove(tempPath)
		return nil, &dadcamerr.VerificationFailedError{
			Path:     dest,
			Expected: sourceHash,
			Actual:   destHash,
		}
	}

	if err := os.Rename(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return nil, dadcamerr.NewIOError(dest, fmt.Errorf("rename temp to final: %w", err))
	}

	if runtime.GOOS != "windows" {
		if dir, err := os.Open(destParent); err == nil {
			dir.Sync()
			dir.Close()
		}
	}

	if srcInfo, err := os.Stat(source); err == nil {
		os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime())
	}

	return &Result{SourceHash: sourceHash, BytesCopied: written}, nil
}

// streamCopyAndHash performs steps 3-5 of the copy algorithm: one pass
// reading chunks from src, updating a full-hash accumulator, and
// writing each chunk to a freshly created temp file, which is then
// fsynced before the accumulator is finalized. Never more than one
// ChunkSize buffer is held in memory.
func streamCopyAndHash(src io.Reader, tempPath string) (string, int64, error) {
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return "", 0, dadcamerr.NewIOError(tempPath, err)
	}

	h := blake3.New(32, nil)
	buf := make([]byte, hashing.ChunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := tempFile.Write(buf[:n]); err != nil {
				tempFile.Close()
				return "", written, fmt.Errorf("write temp file: %w", err)
			}
			h.Write(buf[:n])
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tempFile.Close()
			return "", written, fmt.Errorf("read source: %w", readErr)
		}
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return "", written, dadcamerr.NewIOError(tempPath, fmt.Errorf("fsync temp file: %w", err))
	}
	if err := tempFile.Close(); err != nil {
		return "", written, dadcamerr.NewIOError(tempPath, err)
	}

	return "blake3:full:" + hex.EncodeToString(h.Sum(nil)), written, nil
}

// UniquePath resolves filename conflicts by appending _1.._999 before the
// extension, matching spec §4.2's filename conflict policy.
func UniquePath(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	stem = filepath.Base(stem)

	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not generate unique filename for %s after 999 attempts", path)
}

// DateFolder returns the "YYYY/MM" subfolder used for copy-mode
// date-based organization, derived from the source's modification time.
func DateFolder(modTimeYear int, modTimeMonth int) string {
	return fmt.Sprintf("%04d/%02d", modTimeYear, modTimeMonth)
}
