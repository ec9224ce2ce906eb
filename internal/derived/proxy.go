package derived

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dadcam.systems/core/pkg/ffmpeg"
)

// ProxyInput describes the source clip fields the proxy generator
// needs to decide its filter chain.
type ProxyInput struct {
	SourcePath string
	Codec      string
	Height     int
	FieldOrder string // ffprobe's "progressive" | "tt" | "bb" | "" (unreported)
	AudioOnly  bool
	TargetFPS  int
	LUTPath    string
}

// NeedsDeinterlace decides whether a source needs deinterlacing before
// scaling, combining a codec/height heuristic with the probed field
// order when ffprobe reported one (spec §4.8 proxy extras).
func NeedsDeinterlace(codec string, height int, fieldOrder string) bool {
	if fieldOrder != "" {
		return fieldOrder != "progressive"
	}
	lc := strings.ToLower(codec)
	if strings.Contains(lc, "mpeg2") || strings.Contains(lc, "dvvideo") {
		return true
	}
	switch height {
	case 1080, 480, 576:
		return true
	}
	return false
}

// GenerateProxy transcodes a video source to a constrained 720p H.264
// MP4, writing to a temp path and renaming into place on success.
func GenerateProxy(ctx context.Context, in ProxyInput, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create proxy dir: %w", err)
	}

	targetFPS := in.TargetFPS
	if targetFPS == 0 {
		targetFPS = 30
	}

	tmpPath := outPath + ".tmp" + filepath.Ext(outPath)

	opts := []ffmpeg.Option{
		ffmpeg.ScaleHeight(720),
	}
	if NeedsDeinterlace(in.Codec, in.Height, in.FieldOrder) {
		opts = append([]ffmpeg.Option{ffmpeg.Filter("yadif=mode=1")}, opts...)
	}
	if in.LUTPath != "" {
		opts = append(opts, ffmpeg.Filter(fmt.Sprintf("lut3d=%s", in.LUTPath)))
	}
	opts = append(opts,
		ffmpeg.VideoCodec("libx264"),
		ffmpeg.Preset("medium"),
		ffmpeg.CRF(23),
		ffmpeg.AudioCodec("aac"),
		ffmpeg.AudioBitrate("128k"),
		ffmpeg.ExtraArgs("-r", itoa(targetFPS)),
	)

	result := ffmpeg.RunCapture(ctx, in.SourcePath, tmpPath, opts...)
	if result.Err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg proxy generation: %w", result.Err)
	}

	return finishAtomic(tmpPath, outPath)
}

// GenerateAudioProxy transcodes an audio-only source to AAC in an M4A
// container.
func GenerateAudioProxy(ctx context.Context, sourcePath, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create proxy dir: %w", err)
	}
	tmpPath := outPath + ".tmp.m4a"

	result := ffmpeg.RunCapture(ctx, sourcePath, tmpPath,
		ffmpeg.ExtraArgs("-vn"),
		ffmpeg.AudioCodec("aac"),
		ffmpeg.AudioBitrate("128k"),
	)
	if result.Err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg audio proxy generation: %w", result.Err)
	}

	return finishAtomic(tmpPath, outPath)
}

func finishAtomic(tmpPath, finalPath string) error {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("stat generated temp file: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(tmpPath)
		return fmt.Errorf("generated file %s is empty", finalPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
