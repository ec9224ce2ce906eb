package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"dadcam.systems/core/internal/hashing"
	"dadcam.systems/core/internal/libstore"
	"dadcam.systems/core/internal/licensing"
)

// Insert records a new recipe row for def, always under a fresh
// edit_uuid — recipes are never edited in place (spec §4.9).
func Insert(ctx context.Context, store *libstore.Store, name string, def Definition) (string, error) {
	audioBlend, err := json.Marshal(def.AudioBlendParams)
	if err != nil {
		return "", fmt.Errorf("marshal audio blend params: %w", err)
	}
	overrides, err := json.Marshal(def.TransformOverrides)
	if err != nil {
		return "", fmt.Errorf("marshal transform overrides: %w", err)
	}
	clipIDs, err := json.Marshal(def.InputClipIDs)
	if err != nil {
		return "", fmt.Errorf("marshal input clip ids: %w", err)
	}

	return store.InsertRecipe(ctx, libstore.Recipe{
		Name:               name,
		PipelineVersion:    def.PipelineVersion,
		RecipeHash:         def.Hash(),
		InputClipIDsJSON:   string(clipIDs),
		TitleText:          def.TitleText,
		TitleOffsetSeconds: def.TitleOffsetSeconds,
		AudioBlendParams:   string(audioBlend),
		TransformOverrides: string(overrides),
	})
}

// Build resolves a stored recipe's input clips to render inputs
// (proxy preferred, original as fallback — spec §4.9 "uses previously
// generated proxies as inputs"), renders the export, and records the
// output path and content hash back on the recipe row.
func Build(ctx context.Context, store *libstore.Store, libraryRoot, exportsDir, editUUID string,
	gate licensing.Gate, isCancelled CancelFunc, onProgress func(percent int)) error {

	rec, err := store.GetRecipe(ctx, editUUID)
	if err != nil {
		return fmt.Errorf("load recipe: %w", err)
	}

	var clipIDs []int64
	if err := json.Unmarshal([]byte(rec.InputClipIDsJSON), &clipIDs); err != nil {
		return fmt.Errorf("unmarshal input clip ids: %w", err)
	}

	clips := make([]RenderClip, 0, len(clipIDs))
	for _, clipID := range clipIDs {
		clip, err := store.GetClip(ctx, clipID)
		if err != nil {
			return fmt.Errorf("load clip %d: %w", clipID, err)
		}

		asset, hasProxy, err := store.GetClipAsset(ctx, clipID, libstore.AssetProxy)
		if err != nil {
			return fmt.Errorf("load proxy for clip %d: %w", clipID, err)
		}
		if !hasProxy {
			asset, err = store.GetAsset(ctx, clip.OriginalAssetID)
			if err != nil {
				return fmt.Errorf("load original for clip %d: %w", clipID, err)
			}
		}

		clips = append(clips, RenderClip{
			ClipID:     clipID,
			Path:       filepath.Join(libraryRoot, asset.RelativePath),
			DurationMS: clip.DurationMS,
			HasAudio:   clip.AudioCodec != "",
		})
	}

	outName := fmt.Sprintf("%s_%s.mp4", editUUID, rec.RecipeHash[:16])
	outPath := filepath.Join(libraryRoot, exportsDir, outName)

	in := RenderInput{
		Clips:            clips,
		TitleText:        rec.TitleText,
		TitleStartSecond: rec.TitleOffsetSeconds,
		Gate:             gate,
	}
	if err := Render(ctx, in, outPath, isCancelled, onProgress); err != nil {
		return err
	}

	outputHash, err := hashing.FullHash(outPath)
	if err != nil {
		return fmt.Errorf("hash rendered output: %w", err)
	}
	relOut, err := filepath.Rel(libraryRoot, outPath)
	if err != nil {
		return fmt.Errorf("relativize output path: %w", err)
	}
	return store.SetRecipeOutput(ctx, editUUID, relOut, outputHash)
}
