package rematch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dadcam.systems/core/internal/camera"
	"dadcam.systems/core/internal/libstore"
)

func openTestStore(t *testing.T) *libstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := libstore.Open(filepath.Join(dir, "library.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func writeSidecar(t *testing.T, sidecarDir, originalRelPath string, sig camera.MatchInputSignature) {
	t.Helper()
	doc := sidecarAuditDoc{MatchAudit: camera.MatchAudit{InputSignature: sig}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(sidecarDir, sidecarRelPath(originalRelPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestRun_ResolvesGenericFallbackAndInvalidatesProxy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sidecarDir := t.TempDir()

	originalRelPath := "originals/2026/01/clip1.mov"
	originalID, err := s.InsertAsset(ctx, libstore.Asset{
		LibraryID: "lib-1", Kind: libstore.AssetOriginal, RelativePath: originalRelPath,
	})
	require.NoError(t, err)
	proxyID, err := s.InsertAsset(ctx, libstore.Asset{
		LibraryID: "lib-1", Kind: libstore.AssetProxy, RelativePath: "proxies/1_x.mp4", PipelineVersion: 3,
	})
	require.NoError(t, err)

	clipID, err := s.InsertClip(ctx, libstore.Clip{
		LibraryID: "lib-1", OriginalAssetID: originalID, MediaKind: "video",
		ProfileType: "bundled", ProfileRef: camera.GenericFallbackSlug,
	})
	require.NoError(t, err)
	require.NoError(t, s.LinkClipAsset(ctx, clipID, proxyID, libstore.AssetProxy))

	writeSidecar(t, sidecarDir, originalRelPath, camera.MatchInputSignature{
		Make: "Sony", Codec: "h264", Container: "mts",
	})

	bundled := []camera.BundledProfile{{
		Slug: "sony-avchd", Name: "Sony AVCHD",
		MatchRules: camera.MatchRules{Make: []string{"sony"}, Codec: []string{"h264"}, Container: []string{"mts"}},
	}}

	n, err := Run(ctx, s, "lib-1", sidecarDir, Inputs{Bundled: bundled})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	clip, err := s.GetClip(ctx, clipID)
	require.NoError(t, err)
	require.Equal(t, "sony-avchd", clip.ProfileRef)

	proxy, err := s.GetAsset(ctx, proxyID)
	require.NoError(t, err)
	require.Equal(t, 0, proxy.PipelineVersion)
}

func TestRun_StaysGenericWhenNoProfileMatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sidecarDir := t.TempDir()

	originalRelPath := "originals/2026/01/clip2.mov"
	originalID, err := s.InsertAsset(ctx, libstore.Asset{
		LibraryID: "lib-1", Kind: libstore.AssetOriginal, RelativePath: originalRelPath,
	})
	require.NoError(t, err)
	clipID, err := s.InsertClip(ctx, libstore.Clip{
		LibraryID: "lib-1", OriginalAssetID: originalID, MediaKind: "video",
		ProfileType: "bundled", ProfileRef: camera.GenericFallbackSlug,
	})
	require.NoError(t, err)

	writeSidecar(t, sidecarDir, originalRelPath, camera.MatchInputSignature{Make: "Unknown Brand"})

	n, err := Run(ctx, s, "lib-1", sidecarDir, Inputs{})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	clip, err := s.GetClip(ctx, clipID)
	require.NoError(t, err)
	require.Equal(t, camera.GenericFallbackSlug, clip.ProfileRef)
}
