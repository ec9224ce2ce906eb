package derived

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dadcam.systems/core/internal/libstore"
)

// Generator produces and tracks proxy/thumb/sprite assets for clips in
// one library, honouring the staleness contract in params.go (spec
// §4.8): an existing asset whose pipeline_version and derived_params
// already match the current recipe is left untouched.
type Generator struct {
	Store           *libstore.Store
	LibraryRoot     string
	DerivedDir      string // relative to LibraryRoot, e.g. "derived"
	PipelineVersion int
	SpriteExtraFine bool
}

func (g *Generator) derivedSubdir(sub string) string {
	return filepath.Join(g.LibraryRoot, g.DerivedDir, sub)
}

// sourceAbsPath resolves a clip's original asset to an absolute path
// under the library root.
func (g *Generator) sourceAbsPath(ctx context.Context, clip libstore.Clip) (string, error) {
	original, err := g.Store.GetAsset(ctx, clip.OriginalAssetID)
	if err != nil {
		return "", fmt.Errorf("load original asset: %w", err)
	}
	return filepath.Join(g.LibraryRoot, original.RelativePath), nil
}

// EnsureProxy generates or refreshes a clip's proxy asset, returning
// the linked asset and whether it actually regenerated (I/O skipped
// when fresh).
func (g *Generator) EnsureProxy(ctx context.Context, clip libstore.Clip, sourceHash string, fieldOrder string, lutRef string) (libstore.Asset, bool, error) {
	params := ForProxy(g.PipelineVersion, clip.ProfileRef, sourceHash,
		NeedsDeinterlace(clip.Codec, clip.Height, fieldOrder), 30, lutRef)
	if clip.MediaKind == "audio" {
		params = ForAudioProxy(g.PipelineVersion, clip.ProfileRef, sourceHash)
	}

	ext := "mp4"
	if clip.MediaKind == "audio" {
		ext = "m4a"
	}

	return g.ensure(ctx, clip, RoleProxy, params, "proxies", ext, func(srcPath, outPath string) error {
		if clip.MediaKind == "audio" {
			return GenerateAudioProxy(ctx, srcPath, outPath)
		}
		return GenerateProxy(ctx, ProxyInput{
			SourcePath: srcPath,
			Codec:      clip.Codec,
			Height:     clip.Height,
			FieldOrder: fieldOrder,
			TargetFPS:  30,
			LUTPath:    lutRef,
		}, outPath)
	})
}

// EnsureThumb generates or refreshes a clip's poster thumbnail.
func (g *Generator) EnsureThumb(ctx context.Context, clip libstore.Clip, sourceHash string) (libstore.Asset, bool, error) {
	const quality, maxWidth = 4, 480
	params := ForThumb(g.PipelineVersion, clip.ProfileRef, sourceHash, quality, maxWidth)

	return g.ensure(ctx, clip, RoleThumb, params, "thumbs", "jpg", func(srcPath, outPath string) error {
		return GenerateThumb(ctx, ThumbInput{
			SourcePath: srcPath,
			MediaKind:  clip.MediaKind,
			DurationMS: clip.DurationMS,
			Quality:    quality,
			MaxWidth:   maxWidth,
		}, outPath)
	})
}

// EnsureSprite generates or refreshes a clip's sprite sheet, VTT cues,
// and layout descriptor. Only meaningful for video clips.
func (g *Generator) EnsureSprite(ctx context.Context, clip libstore.Clip, sourceHash string) (libstore.Asset, bool, error) {
	opts := SpriteOptions{}
	if g.SpriteExtraFine {
		opts.FPS = 2
		opts.TileWidth = 200
		opts.MaxFrames = 240
	}
	opts = opts.withDefaults()

	params := ForSprite(g.PipelineVersion, clip.ProfileRef, sourceHash, opts.FPS, opts.TileWidth, opts.MaxFrames)

	return g.ensure(ctx, clip, RoleSprite, params, "sprites", "jpg", func(srcPath, outPath string) error {
		pages, err := GenerateSprites(ctx, srcPath, outPath, clip.DurationMS, opts)
		if err != nil {
			return err
		}
		vttPath := stemPath(outPath, "vtt")
		if err := WriteVTT(vttPath, pages, clip.DurationMS); err != nil {
			return fmt.Errorf("write sprite vtt: %w", err)
		}
		jsonPath := stemPath(outPath, "json")
		if err := WriteLayoutJSON(jsonPath, pages); err != nil {
			return fmt.Errorf("write sprite layout: %w", err)
		}
		return nil
	})
}

func stemPath(path, newExt string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + "." + newExt
}

// ensure implements the shared regenerate-or-skip contract: compute
// the output path from the params hash, check an existing linked
// asset for staleness, and if stale (or absent) call generate, delete
// the old file, and write/update the asset row and link.
func (g *Generator) ensure(ctx context.Context, clip libstore.Clip, role string, params Params, subdir, ext string,
	generate func(srcPath, outPath string) error) (libstore.Asset, bool, error) {

	existing, hasExisting, err := g.Store.GetClipAsset(ctx, clip.ID, role)
	if err != nil {
		return libstore.Asset{}, false, fmt.Errorf("load existing %s asset: %w", role, err)
	}
	if hasExisting && !IsStale(existing.PipelineVersion, existing.DerivedParams, params) {
		return existing, false, nil
	}

	srcPath, err := g.sourceAbsPath(ctx, clip)
	if err != nil {
		return libstore.Asset{}, false, err
	}

	outName := fmt.Sprintf("%d_%s.%s", clip.ID, params.Hash(), ext)
	outPath := filepath.Join(g.derivedSubdir(subdir), outName)
	relOut, err := filepath.Rel(g.LibraryRoot, outPath)
	if err != nil {
		return libstore.Asset{}, false, fmt.Errorf("relativize output path: %w", err)
	}

	if err := generate(srcPath, outPath); err != nil {
		return libstore.Asset{}, false, fmt.Errorf("generate %s: %w", role, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return libstore.Asset{}, false, fmt.Errorf("stat generated %s: %w", role, err)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return libstore.Asset{}, false, fmt.Errorf("marshal %s params: %w", role, err)
	}

	if hasExisting {
		if existing.RelativePath != relOut {
			os.Remove(filepath.Join(g.LibraryRoot, existing.RelativePath))
		}
		existing.RelativePath = relOut
		existing.Size = info.Size()
		existing.PipelineVersion = params.PipelineVersion
		existing.DerivedParams = string(paramsJSON)
		if err := g.Store.UpdateAsset(ctx, existing); err != nil {
			return libstore.Asset{}, false, fmt.Errorf("update %s asset row: %w", role, err)
		}
		return existing, true, nil
	}

	asset := libstore.Asset{
		LibraryID:       clip.LibraryID,
		Kind:            role,
		RelativePath:    relOut,
		Size:            info.Size(),
		PipelineVersion: params.PipelineVersion,
		DerivedParams:   string(paramsJSON),
	}
	assetID, err := g.Store.InsertAsset(ctx, asset)
	if err != nil {
		return libstore.Asset{}, false, fmt.Errorf("insert %s asset row: %w", role, err)
	}
	asset.ID = assetID

	if err := g.Store.LinkClipAsset(ctx, clip.ID, assetID, role); err != nil {
		return libstore.Asset{}, false, fmt.Errorf("link %s asset: %w", role, err)
	}
	return asset, true, nil
}
