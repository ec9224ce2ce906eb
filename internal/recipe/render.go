package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dadcam.systems/core/internal/dadcamerr"
	"dadcam.systems/core/internal/licensing"
	"dadcam.systems/core/pkg/ffmpeg"
)

// titleDuration is the total title overlay window: 0.5s fade-in, 2s
// hold, 0.5s fade-out (spec §4.9).
const titleDuration = 3.0

// RenderClip is one resolved input to the render: its proxy (or
// original, if no proxy exists) absolute path, duration, and whether
// it carries an audio stream.
type RenderClip struct {
	ClipID     int64
	Path       string
	DurationMS int64
	HasAudio   bool
}

// RenderInput bundles everything Render needs beyond the clip list.
type RenderInput struct {
	Clips            []RenderClip
	TitleText        string
	TitleStartSecond float64
	BlendSeconds     float64
	Gate             licensing.Gate
}

// CancelFunc reports whether the calling job has been asked to cancel.
type CancelFunc func() bool

// Render builds the crossfaded, titled (and, when the licensing gate
// is inactive, watermarked + 720p-capped) output for a recipe,
// writing to a temp path and renaming into place on success. Progress
// is reported as a 0-100 integer; isCancelled is polled before the
// transcode starts and between each progress callback (spec §4.9).
func Render(ctx context.Context, in RenderInput, outPath string, isCancelled CancelFunc, onProgress func(percent int)) error {
	if len(in.Clips) == 0 {
		return dadcamerr.NewInvalidInputError("clips", "recipe has no input clips")
	}
	for _, c := range in.Clips {
		if c.DurationMS <= 0 {
			return dadcamerr.NewInvalidInputError("clips", fmt.Sprintf("clip %d has no usable duration", c.ClipID))
		}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	blendSec := in.BlendSeconds
	if blendSec == 0 {
		blendSec = 0.5
	}
	titleStart := in.TitleStartSecond
	if titleStart == 0 {
		titleStart = 5.0
	}
	watermark := licensing.ShouldWatermark(in.Gate)

	args := buildExportArgs(in.Clips, in.TitleText, watermark, blendSec, titleStart)

	tmpPath := outPath + ".tmp" + filepath.Ext(outPath)
	args = append(args, tmpPath)

	if isCancelled != nil && isCancelled() {
		return dadcamerr.Cancelled
	}

	totalMS := int64(0)
	for _, c := range in.Clips {
		totalMS += c.DurationMS
	}
	if totalMS <= 0 {
		totalMS = 1
	}

	progress := make(chan ffmpeg.Progress, 8)
	proc, err := ffmpeg.Start(ctx, args, progress)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	for p := range progress {
		if isCancelled != nil && isCancelled() {
			proc.Kill()
			proc.Wait()
			os.Remove(tmpPath)
			return dadcamerr.Cancelled
		}
		if onProgress != nil {
			percent := int(p.OutTimeMS() * 100 / totalMS)
			if percent > 99 {
				percent = 99
			}
			onProgress(percent)
		}
	}

	if err := proc.Wait(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg render: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("stat rendered output: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(tmpPath)
		return fmt.Errorf("rendered output %s is empty", outPath)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

// buildExportArgs mirrors ffmpeg_builder.rs's single/multi-clip split:
// one clip needs only a conform+encode pass, more than one needs a
// chained xfade/acrossfade filtergraph.
func buildExportArgs(clips []RenderClip, titleText string, watermark bool, blendSec, titleStart float64) []string {
	if len(clips) == 1 {
		return buildSingleClipArgs(clips[0], titleText, watermark, titleStart)
	}
	return buildMultiClipArgs(clips, titleText, watermark, blendSec, titleStart)
}

func buildSingleClipArgs(clip RenderClip, titleText string, watermark bool, titleStart float64) []string {
	args := []string{"-hide_banner", "-y", "-i", clip.Path}
	if !clip.HasAudio {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r=48000:cl=stereo")
	}

	vfilters := []string{conformVideoFilter()}
	if titleText != "" {
		vfilters = append(vfilters, titleOverlayFilter(titleText, titleStart, titleDuration))
	}
	if watermark {
		wm, scale := watermarkFilters()
		vfilters = append(vfilters, wm, scale)
	}
	args = append(args, "-vf", strings.Join(vfilters, ","))

	if clip.HasAudio {
		args = append(args, "-af", conformAudioFilter())
	} else {
		args = append(args, "-map", "0:v", "-map", "1:a")
	}

	args = append(args, outputEncodingArgs()...)
	return args
}

func buildMultiClipArgs(clips []RenderClip, titleText string, watermark bool, blendSec, titleStart float64) []string {
	n := len(clips)
	args := []string{"-hide_banner", "-y"}
	for _, c := range clips {
		args = append(args, "-i", c.Path)
	}

	nullAudioIdx := n
	hasAnySilent := false
	for _, c := range clips {
		if !c.HasAudio {
			hasAnySilent = true
			break
		}
	}
	if hasAnySilent {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r=48000:cl=stereo")
	}

	var filterParts []string
	for i, c := range clips {
		filterParts = append(filterParts, fmt.Sprintf("[%d:v]%s[v%d]", i, conformVideoFilter(), i))
		if c.HasAudio {
			filterParts = append(filterParts, fmt.Sprintf("[%d:a]%s[a%d]", i, conformAudioFilter(), i))
		} else {
			filterParts = append(filterParts, fmt.Sprintf("[%d:a]acopy[a%d]", nullAudioIdx, i))
		}
	}

	videoOut := buildXfadeChain(&filterParts, clips, blendSec)
	audioOut := buildAcrossfadeChain(&filterParts, clips, blendSec)

	finalVideo := videoOut
	if titleText != "" {
		overlay := titleOverlayFilter(titleText, titleStart, titleDuration)
		filterParts = append(filterParts, fmt.Sprintf("[%s]%s[titled]", finalVideo, overlay))
		finalVideo = "titled"
	}
	if watermark {
		wm, scale := watermarkFilters()
		filterParts = append(filterParts, fmt.Sprintf("[%s]%s,%s[watermarked]", finalVideo, wm, scale))
		finalVideo = "watermarked"
	}

	args = append(args, "-filter_complex", strings.Join(filterParts, ";"))
	args = append(args, "-map", "["+finalVideo+"]", "-map", "["+audioOut+"]")
	args = append(args, outputEncodingArgs()...)
	return args
}

func buildXfadeChain(filterParts *[]string, clips []RenderClip, blendSec float64) string {
	n := len(clips)
	if n == 1 {
		return "v0"
	}
	cumulativeSec := 0.0
	prevLabel := "v0"
	for i := 1; i < n; i++ {
		prevDurSec := float64(clips[i-1].DurationMS) / 1000
		cumulativeSec += prevDurSec
		offset := cumulativeSec - blendSec*float64(i)
		if offset < 0 {
			offset = 0
		}
		outLabel := fmt.Sprintf("xv%d", i)
		*filterParts = append(*filterParts, fmt.Sprintf(
			"[%s][v%d]xfade=transition=fade:duration=%.3f:offset=%.3f[%s]",
			prevLabel, i, blendSec, offset, outLabel))
		prevLabel = outLabel
	}
	return prevLabel
}

func buildAcrossfadeChain(filterParts *[]string, clips []RenderClip, blendSec float64) string {
	n := len(clips)
	if n == 1 {
		return "a0"
	}
	prevLabel := "a0"
	for i := 1; i < n; i++ {
		prevDurSec := float64(clips[i-1].DurationMS) / 1000
		xfadeDur := blendSec
		if half := prevDurSec / 2; half < xfadeDur {
			xfadeDur = half
		}
		outLabel := fmt.Sprintf("xa%d", i)
		*filterParts = append(*filterParts, fmt.Sprintf(
			"[%s][a%d]acrossfade=d=%.3f:c1=tri:c2=tri[%s]",
			prevLabel, i, xfadeDur, outLabel))
		prevLabel = outLabel
	}
	return prevLabel
}

// conformVideoFilter normalizes resolution, fps, and SAR so every
// input matches before crossfading.
func conformVideoFilter() string {
	return "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2,fps=30,setsar=1"
}

func conformAudioFilter() string {
	return "aresample=48000,aformat=channel_layouts=stereo"
}

// titleOverlayFilter draws the title text with a 0.5s fade-in, hold,
// 0.5s fade-out envelope.
func titleOverlayFilter(text string, startSec, duration float64) string {
	escaped := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`).Replace(text)
	endSec := startSec + duration
	fadeInEnd := startSec + 0.5
	fadeOutStart := endSec - 0.5

	return fmt.Sprintf(
		"drawtext=text='%s':fontsize=48:fontcolor=white:borderw=2:bordercolor=black:"+
			"x=(w-text_w)/2:y=(h-text_h)/2:"+
			"enable='between(t,%.3f,%.3f)':"+
			"alpha='if(lt(t,%.3f),(t-%.3f)/0.5,if(gt(t,%.3f),(1-(t-%.3f)/0.5),1))'",
		escaped, startSec, endSec, fadeInEnd, startSec, fadeOutStart, fadeOutStart)
}

// watermarkFilters returns the video filter pair applied when the
// licensing gate is inactive: a single semi-transparent text line
// centred near the bottom edge, plus the 720p resolution cap.
func watermarkFilters() (watermark, scale string) {
	watermark = "drawtext=text='DAD CAM - UNLICENSED':fontsize=24:fontcolor=white@0.35:" +
		"x=(w-text_w)/2:y=h-(text_h*2):box=0"
	scale = "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2"
	return watermark, scale
}

func outputEncodingArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-shortest",
	}
}
