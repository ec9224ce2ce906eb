package recipe

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

func insertVideoClip(t *testing.T, s *libstore.Store, libraryID string, recordedAt time.Time, overall float64) int64 {
	t.Helper()
	ctx := context.Background()

	assetID, err := s.InsertAsset(ctx, libstore.Asset{
		LibraryID:    libraryID,
		Kind:         libstore.AssetOriginal,
		RelativePath: "originals/x.mp4",
	})
	require.NoError(t, err)

	clipID, err := s.InsertClip(ctx, libstore.Clip{
		LibraryID:       libraryID,
		OriginalAssetID: assetID,
		MediaKind:       "video",
		DurationMS:      4000,
		RecordedAt:      sql.NullTime{Time: recordedAt, Valid: true},
	})
	require.NoError(t, err)

	if overall > 0 {
		require.NoError(t, s.UpsertClipScore(ctx, libstore.ClipScore{
			ClipID:  clipID,
			Overall: overall,
			Reasons: "[]",
		}))
	}

	return clipID
}

func TestSelectClips_AllOrderedByScoreDesc(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	low := insertVideoClip(t, s, "lib-1", now, 0.2)
	high := insertVideoClip(t, s, "lib-1", now.Add(time.Hour), 0.9)

	ids, err := SelectClips(ctx, s, SelectionParams{LibraryID: "lib-1", Mode: SelectAll, Ordering: OrderScoreDesc})
	require.NoError(t, err)
	require.Equal(t, []int64{high, low}, ids)
}

func TestSelectClips_ScoreThresholdFiltersLowScores(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	insertVideoClip(t, s, "lib-1", now, 0.3)
	high := insertVideoClip(t, s, "lib-1", now.Add(time.Hour), 0.8)

	ids, err := SelectClips(ctx, s, SelectionParams{
		LibraryID: "lib-1", Mode: SelectScore, Ordering: OrderChronological, ScoreThreshold: 0.6,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{high}, ids)
}

func TestSelectClips_DateRangeExcludesOutOfWindowClips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inWindow := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	within := insertVideoClip(t, s, "lib-1", inWindow, 0)
	insertVideoClip(t, s, "lib-1", outOfWindow, 0)

	ids, err := SelectClips(ctx, s, SelectionParams{
		LibraryID: "lib-1",
		Mode:      SelectDateRange,
		Ordering:  OrderChronological,
		DateFrom:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, []int64{within}, ids)
}

func TestSelectClips_ShuffleIsDeterministicForSameSeed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		insertVideoClip(t, s, "lib-1", now.Add(time.Duration(i)*time.Hour), 0)
	}

	first, err := SelectClips(ctx, s, SelectionParams{LibraryID: "lib-1", Mode: SelectAll, Ordering: OrderShuffle, ShuffleSeed: 7})
	require.NoError(t, err)
	second, err := SelectClips(ctx, s, SelectionParams{LibraryID: "lib-1", Mode: SelectAll, Ordering: OrderShuffle, ShuffleSeed: 7})
	require.NoError(t, err)

	require.Equal(t, first, second)
}
