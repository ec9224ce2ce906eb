package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dadcam.systems/core/internal/camera"
	"dadcam.systems/core/internal/libstore"
)

func TestReadFieldOrder_ReturnsStoredSignatureField(t *testing.T) {
	dir := t.TempDir()
	doc := sidecarMatchInputSignature{}
	doc.MatchAudit.InputSignature = camera.MatchInputSignature{FieldOrder: "tff"}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	sidecarPath := filepath.Join(dir, "clip1.json")
	require.NoError(t, os.WriteFile(sidecarPath, data, 0o644))

	fieldOrder, err := readFieldOrder(dir, "clip1.mov")
	require.NoError(t, err)
	assert.Equal(t, "tff", fieldOrder)
}

func TestReadFieldOrder_MissingSidecarReturnsEmpty(t *testing.T) {
	dir := t.TempDir()

	fieldOrder, err := readFieldOrder(dir, "missing.mov")
	require.NoError(t, err)
	assert.Empty(t, fieldOrder)
}

func TestLutRefFor_ResolvesFromBundledProfile(t *testing.T) {
	clip := libstore.Clip{ProfileType: "bundled", ProfileRef: "sony-avchd"}
	bundled := []camera.BundledProfile{{
		Slug:           "sony-avchd",
		TransformRules: camera.TransformRules{"lutRef": "luts/sony-flat.cube"},
	}}

	assert.Equal(t, "luts/sony-flat.cube", lutRefFor(clip, bundled, nil))
}

func TestLutRefFor_NoMatchReturnsEmpty(t *testing.T) {
	clip := libstore.Clip{ProfileType: "bundled", ProfileRef: "unknown-slug"}
	bundled := []camera.BundledProfile{{Slug: "sony-avchd"}}

	assert.Empty(t, lutRefFor(clip, bundled, nil))
}

func TestLutRefFor_ResolvesFromUserProfile(t *testing.T) {
	clip := libstore.Clip{ProfileType: "user", ProfileRef: "uuid-1"}
	user := []camera.UserProfile{{
		UUID:           "uuid-1",
		TransformRules: camera.TransformRules{"lutRef": "luts/custom.cube"},
	}}

	assert.Equal(t, "luts/custom.cube", lutRefFor(clip, nil, user))
}
