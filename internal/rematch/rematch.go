// Package rematch implements the rematch engine (spec.md §4.10):
// re-running the camera matcher over already-ingested clips after a
// profile set or device registry changes, without re-reading source
// files.
package rematch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dadcam.systems/core/internal/camera"
	"dadcam.systems/core/internal/libstore"
)

// sidecarAuditDoc reads only the one field rematch needs out of a
// clip's sidecar JSON; the full shape is owned by internal/ingest.
type sidecarAuditDoc struct {
	MatchAudit camera.MatchAudit `json:"matchAudit"`
}

// Inputs bundles the current profile/device universe the matcher
// evaluates against, as loaded by the caller from the app store.
type Inputs struct {
	UserProfiles []camera.UserProfile
	Bundled      []camera.BundledProfile
	Devices      []camera.RegisteredDevice
}

// Run enumerates clips needing rematch (generic-fallback or null
// refs), replays each one's stored inputSignature through the matcher,
// and updates the clip's stable refs + invalidates its proxy when the
// new result resolves to something other than generic fallback.
func Run(ctx context.Context, store *libstore.Store, libraryID, sidecarDir string, in Inputs) (rematched int, err error) {
	clips, err := store.ListClipsNeedingRematch(ctx, libraryID)
	if err != nil {
		return 0, fmt.Errorf("list clips needing rematch: %w", err)
	}

	for _, clip := range clips {
		original, err := store.GetAsset(ctx, clip.OriginalAssetID)
		if err != nil {
			return rematched, fmt.Errorf("load original asset for clip %d: %w", clip.ID, err)
		}

		sig, fieldOrder, compressorID, ok, err := readSignature(sidecarDir, original.RelativePath)
		if err != nil {
			return rematched, fmt.Errorf("read sidecar for clip %d: %w", clip.ID, err)
		}
		if !ok {
			continue
		}

		result := camera.Match(sig, nil, in.Devices, in.UserProfiles, in.Bundled)
		if result.MatchSource == camera.SourceGenericFallback {
			continue
		}

		if err := store.UpdateClipCameraRefs(ctx, clip.ID, string(result.ProfileType), result.ProfileRef, result.DeviceUUID); err != nil {
			return rematched, fmt.Errorf("update camera refs for clip %d: %w", clip.ID, err)
		}
		if err := store.InvalidateProxy(ctx, clip.ID); err != nil {
			return rematched, fmt.Errorf("invalidate proxy for clip %d: %w", clip.ID, err)
		}

		// keep the sidecar's own audit trail in sync isn't required by
		// spec §4.10 — only the stable refs and proxy invalidation are.
		_ = fieldOrder
		_ = compressorID

		rematched++
	}

	return rematched, nil
}

// readSignature loads a clip's sidecar and rebuilds the ClipSignature
// the original match ran against, from the stored inputSignature
// (spec §4.10: "never re-read the source file").
func readSignature(sidecarDir, originalRelativePath string) (camera.ClipSignature, string, string, bool, error) {
	sidecarPath := filepath.Join(sidecarDir, sidecarRelPath(originalRelativePath))

	data, err := os.ReadFile(sidecarPath)
	if os.IsNotExist(err) {
		return camera.ClipSignature{}, "", "", false, nil
	}
	if err != nil {
		return camera.ClipSignature{}, "", "", false, err
	}

	var doc sidecarAuditDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return camera.ClipSignature{}, "", "", false, fmt.Errorf("unmarshal sidecar %s: %w", sidecarPath, err)
	}

	sig := doc.MatchAudit.InputSignature
	return camera.ClipSignature{
		CameraMake:   sig.Make,
		CameraModel:  sig.Model,
		SerialNumber: sig.Serial,
		Codec:        sig.Codec,
		Container:    sig.Container,
		Width:        sig.Width,
		Height:       sig.Height,
		FPS:          sig.FPS,
		SourceFolder: sig.FolderPath,
	}, sig.FieldOrder, sig.CompressorID, true, nil
}

func sidecarRelPath(relativePath string) string {
	ext := filepath.Ext(relativePath)
	return relativePath[:len(relativePath)-len(ext)] + ".json"
}
