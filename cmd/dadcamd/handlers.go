package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dadcam.systems/core/internal/camera"
	"dadcam.systems/core/internal/derived"
	"dadcam.systems/core/internal/hashing"
	"dadcam.systems/core/internal/ingest"
	"dadcam.systems/core/internal/jobqueue"
	"dadcam.systems/core/internal/libstore"
	"dadcam.systems/core/internal/licensing"
	"dadcam.systems/core/internal/recipe"
	"dadcam.systems/core/internal/rematch"
	"dadcam.systems/core/internal/scoring"
)

// library bundles the per-library wiring one worker pool dispatches
// against: the library's own store plus the app-wide profile/device
// universe it matches clips against.
type library struct {
	store       *libstore.Store
	libraryID   string
	libraryRoot string
	sidecarDir  string
	ingestMode  string
}

func (l *library) originalsDir() string { return filepath.Join(l.libraryRoot, "originals") }
func (l *library) derivedDir() string   { return "derived" }
func (l *library) exportsDir() string   { return "exports" }

// sidecarMatchInputSignature mirrors internal/rematch's sidecarAuditDoc:
// the one field this daemon needs out of a clip's sidecar JSON to
// resolve proxy-generation inputs that live outside the clips table
// (field order, LUT hints baked into the matched profile).
type sidecarMatchInputSignature struct {
	MatchAudit struct {
		InputSignature camera.MatchInputSignature `json:"inputSignature"`
	} `json:"matchAudit"`
}

func readFieldOrder(sidecarDir, originalRelPath string) (string, error) {
	ext := filepath.Ext(originalRelPath)
	sidecarPath := filepath.Join(sidecarDir, originalRelPath[:len(originalRelPath)-len(ext)]+".json")

	data, err := os.ReadFile(sidecarPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var doc sidecarMatchInputSignature
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("unmarshal sidecar %s: %w", sidecarPath, err)
	}
	return doc.MatchAudit.InputSignature.FieldOrder, nil
}

// lutRefFor resolves the LUT hint carried in a clip's matched
// profile's transform rules, if any. Absent a dedicated LUT-management
// component in this build, the transform rules map is the only place
// such a hint could live (spec §4.5 "transform rules ... opaque to the
// matcher").
func lutRefFor(clip libstore.Clip, bundled []camera.BundledProfile, user []camera.UserProfile) string {
	var rules camera.TransformRules
	switch clip.ProfileType {
	case string(camera.ProfileTypeBundled):
		for _, p := range bundled {
			if p.Slug == clip.ProfileRef {
				rules = p.TransformRules
			}
		}
	case string(camera.ProfileTypeUser):
		for _, p := range user {
			if p.UUID == clip.ProfileRef {
				rules = p.TransformRules
			}
		}
	}
	if rules == nil {
		return ""
	}
	if v, ok := rules["lutRef"].(string); ok {
		return v
	}
	return ""
}

func (l *library) requireOriginalFullHash(ctx context.Context, clip libstore.Clip) (string, error) {
	original, err := l.store.GetAsset(ctx, clip.OriginalAssetID)
	if err != nil {
		return "", err
	}
	if original.FullHash != "" {
		return original.FullHash, nil
	}
	return original.FastHash, nil
}

func hashFullHandler(l *library) jobqueue.Handler {
	return func(ctx context.Context, job *libstore.Job) error {
		if !job.AssetID.Valid {
			return fmt.Errorf("hash_full job %d missing asset id", job.ID)
		}
		asset, err := l.store.GetAsset(ctx, job.AssetID.Int64)
		if err != nil {
			return err
		}
		absPath := filepath.Join(l.libraryRoot, asset.RelativePath)
		fullHash, err := hashing.FullHash(absPath)
		if err != nil {
			return fmt.Errorf("full-hash %s: %w", absPath, err)
		}
		return l.store.SetAssetVerified(ctx, asset.ID, fullHash, "full")
	}
}

func derivedHandler(l *library, gen *derived.Generator, role string, profiles func() ([]camera.BundledProfile, []camera.UserProfile)) jobqueue.Handler {
	return func(ctx context.Context, job *libstore.Job) error {
		if !job.ClipID.Valid {
			return fmt.Errorf("%s job %d missing clip id", role, job.ID)
		}
		clip, err := l.store.GetClip(ctx, job.ClipID.Int64)
		if err != nil {
			return err
		}
		isAVMedia := clip.MediaKind == "video" || clip.MediaKind == "audio"
		if role != derived.RoleThumb && !isAVMedia {
			return nil
		}

		sourceHash, err := l.requireOriginalFullHash(ctx, clip)
		if err != nil {
			return err
		}
		original, err := l.store.GetAsset(ctx, clip.OriginalAssetID)
		if err != nil {
			return err
		}
		fieldOrder, err := readFieldOrder(l.sidecarDir, original.RelativePath)
		if err != nil {
			return err
		}
		bundled, user := profiles()
		lutRef := lutRefFor(clip, bundled, user)

		var genErr error
		switch role {
		case derived.RoleProxy:
			_, _, genErr = gen.EnsureProxy(ctx, clip, sourceHash, fieldOrder, lutRef)
		case derived.RoleThumb:
			_, _, genErr = gen.EnsureThumb(ctx, clip, sourceHash)
		case derived.RoleSprite:
			if clip.MediaKind != "video" {
				return nil
			}
			_, _, genErr = gen.EnsureSprite(ctx, clip, sourceHash)
		default:
			return fmt.Errorf("unknown derived role %q", role)
		}
		return genErr
	}
}

func rematchHandler(l *library, inputs func() rematch.Inputs) jobqueue.Handler {
	return func(ctx context.Context, job *libstore.Job) error {
		_, err := rematch.Run(ctx, l.store, l.libraryID, l.sidecarDir, inputs())
		return err
	}
}

func scoreHandler(l *library, pipelineVersion, scoringVersion int) jobqueue.Handler {
	dims := scoring.DefaultDimensions()
	return func(ctx context.Context, job *libstore.Job) error {
		if !job.ClipID.Valid {
			return fmt.Errorf("score job %d missing clip id", job.ID)
		}
		clip, err := l.store.GetClip(ctx, job.ClipID.Int64)
		if err != nil {
			return err
		}
		sc, err := scoring.AnalyzeClip(ctx, l.store, l.libraryRoot, dims, clip)
		if err != nil {
			return err
		}
		return scoring.Save(ctx, l.store, pipelineVersion, scoringVersion, sc)
	}
}

type recipeRenderPayload struct {
	EditUUID string `json:"edit_uuid"`
}

func recipeRenderHandler(l *library, gate licensing.Gate) jobqueue.Handler {
	return func(ctx context.Context, job *libstore.Job) error {
		var payload recipeRenderPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return fmt.Errorf("unmarshal recipe-render payload: %w", err)
		}
		cancelled := func() bool { return jobqueue.IsCancelled(job.ID) }
		onProgress := func(percent int) {
			_ = l.store.UpdateProgress(ctx, job.ID, job.RunToken, percent)
		}
		return recipe.Build(ctx, l.store, l.libraryRoot, l.exportsDir(), payload.EditUUID, gate, cancelled, onProgress)
	}
}

type ingestPayload struct {
	SourceRoot      string   `json:"source_root"`
	USBFingerprints []string `json:"usb_fingerprints,omitempty"`
}

func ingestHandler(l *library, pipelineVersion int, profiles func() ([]camera.BundledProfile, []camera.UserProfile), devices func() []camera.RegisteredDevice) jobqueue.Handler {
	return func(ctx context.Context, job *libstore.Job) error {
		var payload ingestPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return fmt.Errorf("unmarshal ingest payload: %w", err)
		}
		if payload.SourceRoot == "" {
			return fmt.Errorf("ingest job %d missing source_root", job.ID)
		}

		bundled, user := profiles()
		pipeline := &ingest.Pipeline{
			Store:         l.store,
			LibraryID:     l.libraryID,
			LibraryRoot:   l.libraryRoot,
			IngestMode:    l.ingestMode,
			SidecarDir:    l.sidecarDir,
			OriginalsDir:  l.originalsDir(),
			PipelineVersn: pipelineVersion,
		}
		camCtx := ingest.CameraContext{
			USBFingerprints: payload.USBFingerprints,
			Devices:         devices(),
			UserProfiles:    user,
			BundledProfiles: bundled,
		}
		cancelled := func() bool { return jobqueue.IsCancelled(job.ID) }

		_, err := pipeline.Run(ctx, job.ID, payload.SourceRoot, camCtx, cancelled)
		return err
	}
}
