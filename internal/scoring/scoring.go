// Package scoring computes a clip's quality score across four
// dimensions — scene, audio, sharpness, motion — each behind the
// Analyzer interface the spec treats as a pure, swappable collaborator
// (spec.md §1: "the media-analysis heuristics themselves ... treated
// as pure analyzers the scoring component calls"). Orchestration is
// grounded on original_source/scoring/analyzer.rs's analyze_clip:
// proxy-preferred video path resolution, per-dimension reason codes,
// neutral scores for non-video media.
package scoring

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"dadcam.systems/core/internal/libstore"
)

// Reason codes, matching the tokens original_source/scoring/audio.rs
// and analyzer.rs attach to a result.
const (
	ReasonNonVideo    = "non-video"
	ReasonUnavailable = "analyzer-unavailable"
)

// Analyzer scores one dimension of a clip, returning a 0-1 score and
// an optional reason code.
type Analyzer interface {
	Analyze(ctx context.Context, videoPath string, durationMS int64) (score float64, reason string, err error)
}

// Dimensions bundles the four analyzers the engine runs. Only Audio is
// a real implementation (EBU R128 loudness, see audio.go); the other
// three are stub implementations of the same interface, kept so the
// orchestration and store-write plumbing is exercised end to end.
type Dimensions struct {
	Scene     Analyzer
	Audio     Analyzer
	Sharpness Analyzer
	Motion    Analyzer
}

// DefaultDimensions wires the real audio analyzer against the stub
// implementations of the rest.
func DefaultDimensions() Dimensions {
	return Dimensions{
		Scene:     neutralAnalyzer{},
		Audio:     audioAnalyzer{},
		Sharpness: neutralAnalyzer{},
		Motion:    neutralAnalyzer{},
	}
}

// Score is the computed result for one clip, ready to write via
// libstore.Store.UpsertClipScore.
type Score struct {
	ClipID     int64
	Overall    float64
	Scene      float64
	Audio      float64
	Sharpness  float64
	Motion     float64
	Reasons    []string
}

// AnalyzeClip resolves the best available video for a clip (proxy
// preferred, original as fallback), runs every dimension, and averages
// them into an overall score. Non-video media gets a neutral 0.5 on
// every dimension without running any analyzer (spec: audio-only
// clips still go through the audio proxy path, but image media does
// not).
func AnalyzeClip(ctx context.Context, store *libstore.Store, libraryRoot string, dims Dimensions, clip libstore.Clip) (Score, error) {
	sc := Score{ClipID: clip.ID}

	if clip.MediaKind != "video" && clip.MediaKind != "audio" {
		sc.Scene, sc.Audio, sc.Sharpness, sc.Motion = 0.5, 0.5, 0.5, 0.5
		sc.Reasons = []string{ReasonNonVideo}
		sc.Overall = 0.5
		return sc, nil
	}

	videoPath, err := resolveScoringPath(ctx, store, libraryRoot, clip)
	if err != nil {
		return Score{}, err
	}

	run := func(a Analyzer) float64 {
		if a == nil {
			sc.Reasons = append(sc.Reasons, ReasonUnavailable)
			return 0.5
		}
		score, reason, err := a.Analyze(ctx, videoPath, clip.DurationMS)
		if err != nil {
			sc.Reasons = append(sc.Reasons, ReasonUnavailable)
			return 0.5
		}
		if reason != "" {
			sc.Reasons = append(sc.Reasons, reason)
		}
		return score
	}

	sc.Scene = run(dims.Scene)
	sc.Audio = run(dims.Audio)
	sc.Sharpness = run(dims.Sharpness)
	sc.Motion = run(dims.Motion)
	sc.Overall = (sc.Scene + sc.Audio + sc.Sharpness + sc.Motion) / 4.0

	return sc, nil
}

// resolveScoringPath prefers an existing proxy over the original
// asset — proxies are already transcoded to a smaller, analyzer-
// friendly format (original_source/scoring/analyzer.rs
// get_scoring_video_path).
func resolveScoringPath(ctx context.Context, store *libstore.Store, libraryRoot string, clip libstore.Clip) (string, error) {
	if proxy, ok, err := store.GetClipAsset(ctx, clip.ID, libstore.AssetProxy); err == nil && ok {
		path := filepath.Join(libraryRoot, proxy.RelativePath)
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}

	original, err := store.GetAsset(ctx, clip.OriginalAssetID)
	if err != nil {
		return "", err
	}
	return filepath.Join(libraryRoot, original.RelativePath), nil
}

// Save persists a computed score, overwriting any existing row for
// the clip (spec §3: "rewritten on rescoring").
func Save(ctx context.Context, store *libstore.Store, pipelineVersion, scoringVersion int, sc Score) error {
	reasons, err := json.Marshal(sc.Reasons)
	if err != nil {
		return err
	}
	return store.UpsertClipScore(ctx, libstore.ClipScore{
		ClipID:          sc.ClipID,
		Overall:         sc.Overall,
		SceneScore:      sc.Scene,
		AudioScore:      sc.Audio,
		SharpnessScore:  sc.Sharpness,
		MotionScore:     sc.Motion,
		Reasons:         string(reasons),
		PipelineVersion: pipelineVersion,
		ScoringVersion:  scoringVersion,
	})
}

// neutralAnalyzer is the stub Analyzer implementation for the three
// dimensions this core doesn't implement for real (spec.md §1 names
// scene/sharpness/motion as out-of-scope analyzer internals).
type neutralAnalyzer struct{}

func (neutralAnalyzer) Analyze(ctx context.Context, videoPath string, durationMS int64) (float64, string, error) {
	return 0.5, ReasonUnavailable, nil
}
