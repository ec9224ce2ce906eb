package derived

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dadcam.systems/core/pkg/ffmpeg"
)

// ThumbInput describes what the thumbnail generator needs to know
// about the clip's media kind to pick a generation strategy.
type ThumbInput struct {
	SourcePath string
	MediaKind  string // "video" | "audio" | "image"
	DurationMS int64
	Quality    int // ffmpeg -q:v scale, 1-31 (lower is better)
	MaxWidth   int
}

// posterFraction is where in a video's duration to seek for the poster
// frame: far enough in to skip black leaders/slates, early enough to
// usually land before a fade-out.
const posterFraction = 0.1

// GenerateThumb renders a JPEG poster for a clip: a seeked frame for
// video, a waveform render for audio-only clips, and a plain resize
// for still images (spec §4.8 thumb extras).
func GenerateThumb(ctx context.Context, in ThumbInput, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create thumb dir: %w", err)
	}
	quality := in.Quality
	if quality == 0 {
		quality = 4
	}
	maxWidth := in.MaxWidth
	if maxWidth == 0 {
		maxWidth = 480
	}
	tmpPath := outPath + ".tmp.jpg"

	var result ffmpeg.RunResult
	switch in.MediaKind {
	case "audio":
		result = generateWaveformThumb(ctx, in.SourcePath, tmpPath, maxWidth, quality)
	case "image":
		result = ffmpeg.RunCapture(ctx, in.SourcePath, tmpPath,
			ffmpeg.ScaleForceAspect(maxWidth, -1, "decrease"),
			ffmpeg.Quality(quality),
		)
	default:
		offset := time.Duration(float64(in.DurationMS) * posterFraction * float64(time.Millisecond))
		result = ffmpeg.ExtractThumbnailCapture(ctx, in.SourcePath, tmpPath, &ffmpeg.ThumbnailOptions{
			Offset:   offset,
			MaxWidth: maxWidth,
			Quality:  quality,
		})
	}

	if result.Err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg thumb generation: %w", result.Err)
	}

	return finishAtomic(tmpPath, outPath)
}

// generateWaveformThumb renders a static waveform image via ffmpeg's
// showwavespic source filter, used as the poster for audio-only clips.
func generateWaveformThumb(ctx context.Context, sourcePath, tmpPath string, width, quality int) ffmpeg.RunResult {
	height := width * 9 / 16
	return ffmpeg.RunCapture(ctx, sourcePath, tmpPath,
		ffmpeg.ExtraArgs(
			"-filter_complex", fmt.Sprintf("showwavespic=s=%dx%d:colors=white", width, height),
			"-frames:v", "1",
		),
		ffmpeg.Quality(quality),
	)
}
