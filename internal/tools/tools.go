// Package tools resolves external media tool binaries (ffmpeg, ffprobe,
// exiftool) by a fixed search order. Grounded on original_source's
// tools.rs resolution chain, minus the installer-time auto-download step
// (out of scope for the core pipeline).
package tools

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

var (
	once       sync.Once
	ffmpegPath string
	ffprobePath string
	exiftoolPath string
)

func resolve(envKey, defaultName string) string {
	if v := os.Getenv(envKey); v != "" {
		if _, err := os.Stat(v); err == nil {
			return v
		}
	}

	filename := defaultName

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		binCandidate := filepath.Join(dir, "bin", filename)
		if _, err := os.Stat(binCandidate); err == nil {
			return binCandidate
		}
	}

	// PATH fallback (dev convenience, matches original_source's step 5).
	if p, err := exec.LookPath(defaultName); err == nil {
		return p
	}
	return defaultName
}

func resolveAll() {
	ffmpegPath = resolve("DADCAM_FFMPEG_PATH", "ffmpeg")
	ffprobePath = resolve("DADCAM_FFPROBE_PATH", "ffprobe")
	exiftoolPath = resolve("DADCAM_EXIFTOOL_PATH", "exiftool")
}

// FFmpegPath returns the resolved ffmpeg binary path.
func FFmpegPath() string {
	once.Do(resolveAll)
	return ffmpegPath
}

// FFprobePath returns the resolved ffprobe binary path.
func FFprobePath() string {
	once.Do(resolveAll)
	return ffprobePath
}

// ExiftoolPath returns the resolved exiftool binary path.
func ExiftoolPath() string {
	once.Do(resolveAll)
	return exiftoolPath
}

// Status reports whether a named tool (ffmpeg|ffprobe|exiftool) is
// available: a file at its resolved path counts as available without
// being run; otherwise the path must answer to -version.
func Status(name string) (path string, available bool) {
	switch name {
	case "ffmpeg":
		path = FFmpegPath()
	case "ffprobe":
		path = FFprobePath()
	case "exiftool":
		path = ExiftoolPath()
	default:
		return "", false
	}
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	cmd := exec.Command(path, "-version")
	return path, cmd.Run() == nil
}

// CheckAll reports availability of ffmpeg, ffprobe, and exiftool.
func CheckAll() map[string]bool {
	out := make(map[string]bool, 3)
	for _, name := range []string{"ffmpeg", "ffprobe", "exiftool"} {
		_, ok := Status(name)
		out[name] = ok
	}
	return out
}
