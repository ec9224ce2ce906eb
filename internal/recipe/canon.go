// Package recipe implements the export recipe engine (spec.md §4.9): a
// content-addressed, append-only definition of a multi-clip render,
// plus the crossfade/title-overlay build step that consumes it.
// Rendering is grounded on original_source/export/{mod,ffmpeg_builder,
// timeline}.rs, rebuilt on the teacher's pkg/ffmpeg primitives.
package recipe

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"
)

// Definition is the set of inputs that determine a recipe's identity.
// Its canonical JSON encoding is hashed to produce RecipeHash; two
// Definitions with identical field values always hash equal (spec
// §4.9 property).
type Definition struct {
	InputClipIDs       []int64        `json:"input_clip_ids"`
	TitleText          string         `json:"title_text"`
	TitleOffsetSeconds float64        `json:"title_offset_seconds"`
	AudioBlendParams   map[string]any `json:"audio_blend_params"`
	TransformOverrides map[string]any `json:"transform_overrides"`
	PipelineVersion    int            `json:"pipeline_version"`
}

// Hash returns the hex digest of the definition's canonical
// (key-sorted) JSON, exactly as spec.md §4.9 defines recipe_hash.
func (d Definition) Hash() string {
	canon := canonicalize(d)
	h := blake3.New(32, nil)
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize produces deterministic JSON: top-level keys in the
// alphabetical order spec.md lists them, nested maps sorted by
// encoding/json's default key-sorted map marshalling.
func canonicalize(d Definition) []byte {
	type ordered struct {
		AudioBlendParams   map[string]any `json:"audio_blend_params"`
		InputClipIDs       []int64        `json:"input_clip_ids"`
		PipelineVersion    int            `json:"pipeline_version"`
		TitleOffsetSeconds float64        `json:"title_offset_seconds"`
		TitleText          string         `json:"title_text"`
		TransformOverrides map[string]any `json:"transform_overrides"`
	}
	out, _ := json.Marshal(ordered{
		AudioBlendParams:   d.AudioBlendParams,
		InputClipIDs:       d.InputClipIDs,
		PipelineVersion:    d.PipelineVersion,
		TitleOffsetSeconds: d.TitleOffsetSeconds,
		TitleText:          d.TitleText,
		TransformOverrides: d.TransformOverrides,
	})
	return out
}
