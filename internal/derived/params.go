// Package derived generates the proxy, thumbnail, and sprite-sheet
// assets that follow ingest, per spec.md §4.8. Grounded on
// original_source/preview/{proxy,sprite}.rs for the transcode/tile
// recipes and original_source/preview/mod.rs for the DerivedParams
// staleness contract, rebuilt on the teacher's pkg/ffmpeg composable
// command builder instead of shelling ffmpeg out by hand.
package derived

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"lukechampine.com/blake3"
)

// Role names, matching the clip_asset_links.role check constraint.
const (
	RoleProxy  = "proxy"
	RoleThumb  = "thumb"
	RoleSprite = "sprite"
)

// Params is the serialisable record of inputs that determine a derived
// asset's bytes. Its Hash is embedded in the output filename so two
// parameter sets never collide, and is compared against a stored
// asset's derived_params to decide staleness (spec §4.8).
type Params struct {
	PipelineVersion int            `json:"pipeline_version"`
	Preset          string         `json:"preset"`
	ProfileRef      string         `json:"camera_profile_ref,omitempty"`
	SourceHash      string         `json:"source_hash,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Hash returns the first 16 hex characters of a blake3 digest of the
// params' canonical (key-sorted) JSON encoding.
func (p Params) Hash() string {
	canon := canonicalize(p)
	h := blake3.New(32, nil)
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// canonicalize produces deterministic JSON bytes: struct fields in
// declaration order (stable under encoding/json), but the Extra map's
// keys explicitly sorted since Go map iteration order is otherwise
// unspecified before marshalling.
func canonicalize(p Params) []byte {
	type ordered struct {
		PipelineVersion int    `json:"pipeline_version"`
		Preset          string `json:"preset"`
		ProfileRef      string `json:"camera_profile_ref,omitempty"`
		SourceHash      string `json:"source_hash,omitempty"`
		Extra           []kv   `json:"extra,omitempty"`
	}
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	extra := make([]kv, 0, len(keys))
	for _, k := range keys {
		extra = append(extra, kv{Key: k, Value: p.Extra[k]})
	}
	out, _ := json.Marshal(ordered{
		PipelineVersion: p.PipelineVersion,
		Preset:          p.Preset,
		ProfileRef:      p.ProfileRef,
		SourceHash:      p.SourceHash,
		Extra:           extra,
	})
	return out
}

type kv struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ForProxy builds the params for proxy generation (spec §4.8 proxy
// extras).
func ForProxy(pipelineVersion int, profileRef, sourceHash string, deinterlace bool, targetFPS int, lutRef string) Params {
	extra := map[string]any{
		"codec":       "h264",
		"resolution":  720,
		"crf":         23,
		"deinterlace": deinterlace,
		"target_fps":  targetFPS,
	}
	if lutRef != "" {
		extra["lut_ref"] = lutRef
	}
	return Params{
		PipelineVersion: pipelineVersion,
		Preset:          "proxy_720p",
		ProfileRef:      profileRef,
		SourceHash:      sourceHash,
		Extra:           extra,
	}
}

// ForAudioProxy builds the params for an audio-only proxy.
func ForAudioProxy(pipelineVersion int, profileRef, sourceHash string) Params {
	return Params{
		PipelineVersion: pipelineVersion,
		Preset:          "proxy_audio_m4a",
		ProfileRef:      profileRef,
		SourceHash:      sourceHash,
		Extra: map[string]any{
			"codec":   "aac",
			"bitrate": "128k",
		},
	}
}

// ForThumb builds the params for thumbnail generation.
func ForThumb(pipelineVersion int, profileRef, sourceHash string, quality, maxWidth int) Params {
	return Params{
		PipelineVersion: pipelineVersion,
		Preset:          "thumb_jpeg",
		ProfileRef:      profileRef,
		SourceHash:      sourceHash,
		Extra: map[string]any{
			"format":    "jpeg",
			"quality":   quality,
			"max_width": maxWidth,
		},
	}
}

// ForSprite builds the params for sprite sheet generation.
func ForSprite(pipelineVersion int, profileRef, sourceHash string, fps, tileWidth, frameCount int) Params {
	return Params{
		PipelineVersion: pipelineVersion,
		Preset:          "sprite_tiled",
		ProfileRef:      profileRef,
		SourceHash:      sourceHash,
		Extra: map[string]any{
			"fps":         fps,
			"tile_width":  tileWidth,
			"frame_count": frameCount,
		},
	}
}

// IsStale reports whether a stored asset needs to be regenerated: a
// pipeline version bump, a changed params hash, or a missing
// derived_params column all force regeneration.
func IsStale(storedPipelineVersion int, storedParamsJSON string, current Params) bool {
	if storedPipelineVersion < current.PipelineVersion {
		return true
	}
	if storedParamsJSON == "" {
		return true
	}
	var stored Params
	if err := json.Unmarshal([]byte(storedParamsJSON), &stored); err != nil {
		return true
	}
	return stored.Hash() != current.Hash()
}
