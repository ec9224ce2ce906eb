package scoring

import (
	"context"
	"regexp"
	"strconv"

	"dadcam.systems/core/pkg/ffmpeg"
)

// EBU R128 constants (grounded on original_source/scoring/audio.rs).
const (
	audioTargetLUFS       = -23.0
	audioAcceptableRange  = 10.0
	audioLRAMin           = 4.0
	audioLRAMax           = 15.0
	audioTruePeakMax      = -1.0
	audioShortClipMS      = 3000
)

// Audio reason codes.
const (
	ReasonAudioShort   = "no-audio" // short clips short-circuit to the same neutral reason as no-audio
	ReasonAudioNone    = "no-audio"
	ReasonAudioSilent  = "audio-silent"
	ReasonAudioLoud    = "audio-loud"
	ReasonAudioGood    = "audio-good"
	ReasonAudioModerate = "audio-moderate"
	ReasonAudioQuiet   = "audio-quiet"
)

var (
	lufsPattern = regexp.MustCompile(`I:\s*(-?\d+\.?\d*)\s*LUFS`)
	lraPattern  = regexp.MustCompile(`LRA:\s*(\d+\.?\d*)\s*LU`)
	peakPattern = regexp.MustCompile(`True peak:\s*(-?\d+\.?\d*)\s*dBTP`)
)

// audioAnalyzer measures loudness with ffmpeg's ebur128 filter (spec
// §4: "Clip with no audio stream: audio analyser scores 0.3 with
// reason 'no-audio'").
type audioAnalyzer struct{}

func (audioAnalyzer) Analyze(ctx context.Context, videoPath string, durationMS int64) (float64, string, error) {
	if durationMS < audioShortClipMS {
		return 0.5, ReasonAudioShort, nil
	}

	args := []string{
		"-hide_banner", "-y",
		"-i", videoPath,
		"-af", "ebur128=peak=true:framelog=verbose",
		"-f", "null", "-",
	}

	proc, err := ffmpeg.Start(ctx, args, nil)
	if err != nil {
		return 0, "", err
	}
	_ = proc.Wait() // ebur128 writes its summary to stderr regardless of exit status

	stats := parseEBUR128(proc.Stderr())
	score, reason := computeAudioScore(stats)
	return score, reason, nil
}

type audioStats struct {
	integratedLUFS float64
	haveLUFS       bool
	lra            float64
	haveLRA        bool
	truePeak       float64
	haveTruePeak   bool
	hasAudio       bool
}

func parseEBUR128(stderr string) audioStats {
	var stats audioStats

	if m := lufsPattern.FindStringSubmatch(stderr); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.integratedLUFS, stats.haveLUFS, stats.hasAudio = v, true, true
		}
	}
	if m := lraPattern.FindStringSubmatch(stderr); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.lra, stats.haveLRA, stats.hasAudio = v, true, true
		}
	}
	if m := peakPattern.FindStringSubmatch(stderr); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.truePeak, stats.haveTruePeak, stats.hasAudio = v, true, true
		}
	}

	return stats
}

// computeAudioScore mirrors original_source/scoring/audio.rs's
// compute_audio_score penalty/reward ladder.
func computeAudioScore(stats audioStats) (float64, string) {
	if !stats.hasAudio {
		return 0.3, ReasonAudioNone
	}

	score := 1.0

	if stats.haveLUFS {
		distance := abs(stats.integratedLUFS - audioTargetLUFS)
		if distance > audioAcceptableRange {
			penalty := (distance - audioAcceptableRange) / 20.0
			if penalty > 0.3 {
				penalty = 0.3
			}
			score -= penalty

			if stats.integratedLUFS < -35.0 {
				if score > 0.2 {
					score = 0.2
				}
				return score, ReasonAudioSilent
			}
			if stats.integratedLUFS > -10.0 {
				return maxf(score, 0.5), ReasonAudioLoud
			}
		}
	} else {
		score -= 0.2
	}

	if stats.haveLRA {
		if stats.lra < audioLRAMin || stats.lra > audioLRAMax {
			score -= 0.1
		}
	}

	if stats.haveTruePeak && stats.truePeak > audioTruePeakMax {
		score -= 0.15
	}

	final := score
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}

	switch {
	case final >= 0.8:
		return final, ReasonAudioGood
	case final >= 0.6:
		return final, ReasonAudioModerate
	default:
		return final, ReasonAudioQuiet
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
