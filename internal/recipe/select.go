package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"dadcam.systems/core/internal/libstore"
)

// Selection modes and orderings, grounded on
// original_source/export/timeline.rs's select_clips dispatch. The
// "favorites" mode from the original is dropped — it joins a tags
// table this schema doesn't carry (see DESIGN.md).
const (
	SelectDateRange = "date_range"
	SelectEvent     = "event"
	SelectScore     = "score"
	SelectAll       = "all"
)

const (
	OrderChronological = "chronological"
	OrderScoreDesc      = "score_desc"
	OrderScoreAsc       = "score_asc"
	OrderShuffle        = "shuffle"
)

// SelectionParams chooses which clips feed a recipe and how they're
// ordered before rendering.
type SelectionParams struct {
	LibraryID     string
	Mode          string
	Ordering      string
	DateFrom      time.Time
	DateTo        time.Time
	EventID       int64
	ScoreThreshold float64
	ShuffleSeed   int64
}

// SelectClips resolves a selection mode to an ordered list of clip
// ids, ready to become a Definition.InputClipIDs.
func SelectClips(ctx context.Context, store *libstore.Store, p SelectionParams) ([]int64, error) {
	var clips []libstore.Clip
	var err error

	switch p.Mode {
	case SelectDateRange:
		clips, err = selectByDateRange(ctx, store, p)
	case SelectEvent:
		clips, err = selectByEvent(ctx, store, p.EventID)
	case SelectScore:
		clips, err = selectByScore(ctx, store, p)
	default:
		clips, err = selectAll(ctx, store, p.LibraryID)
	}
	if err != nil {
		return nil, err
	}

	if err := order(ctx, store, clips, p); err != nil {
		return nil, err
	}

	ids := make([]int64, len(clips))
	for i, c := range clips {
		ids[i] = c.ID
	}
	return ids, nil
}

func selectByDateRange(ctx context.Context, store *libstore.Store, p SelectionParams) ([]libstore.Clip, error) {
	ids, err := store.ResolveDateRangeClips(ctx, p.LibraryID, p.DateFrom, p.DateTo)
	if err != nil {
		return nil, err
	}
	return loadVideoClips(ctx, store, ids)
}

func selectByEvent(ctx context.Context, store *libstore.Store, eventID int64) ([]libstore.Clip, error) {
	event, err := store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var ids []int64
	switch event.Kind {
	case libstore.EventDateRange:
		if !event.DateStart.Valid || !event.DateEnd.Valid {
			return nil, fmt.Errorf("date_range event %d missing bounds", eventID)
		}
		ids, err = store.ResolveDateRangeClips(ctx, event.LibraryID, event.DateStart.Time, event.DateEnd.Time)
		if err != nil {
			return nil, err
		}
	case libstore.EventClipSelection:
		ids, err = unmarshalClipIDs(event.ClipIDs)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown event kind %q", event.Kind)
	}

	return loadVideoClips(ctx, store, ids)
}

func selectByScore(ctx context.Context, store *libstore.Store, p SelectionParams) ([]libstore.Clip, error) {
	all, err := store.ListClipsByLibrary(ctx, p.LibraryID)
	if err != nil {
		return nil, err
	}

	threshold := p.ScoreThreshold
	if threshold == 0 {
		threshold = 0.6
	}

	var out []libstore.Clip
	for _, c := range all {
		if c.MediaKind != "video" {
			continue
		}
		sc, err := store.GetClipScore(ctx, c.ID)
		if err != nil {
			continue
		}
		if sc.Overall >= threshold {
			out = append(out, c)
		}
	}
	return out, nil
}

func selectAll(ctx context.Context, store *libstore.Store, libraryID string) ([]libstore.Clip, error) {
	all, err := store.ListClipsByLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	var out []libstore.Clip
	for _, c := range all {
		if c.MediaKind == "video" {
			out = append(out, c)
		}
	}
	return out, nil
}

func loadVideoClips(ctx context.Context, store *libstore.Store, ids []int64) ([]libstore.Clip, error) {
	var out []libstore.Clip
	for _, id := range ids {
		c, err := store.GetClip(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.MediaKind == "video" {
			out = append(out, c)
		}
	}
	return out, nil
}

func unmarshalClipIDs(clipIDsJSON string) ([]int64, error) {
	var ids []int64
	if clipIDsJSON == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(clipIDsJSON), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// order applies the selected ordering in place; all non-video clips
// have already been filtered out by the select* functions, so
// queries here run only against clips that already carry a duration
// and path.
func order(ctx context.Context, store *libstore.Store, clips []libstore.Clip, p SelectionParams) error {
	switch p.Ordering {
	case OrderScoreDesc, OrderScoreAsc:
		scores := make(map[int64]float64, len(clips))
		for _, c := range clips {
			sc, err := store.GetClipScore(ctx, c.ID)
			if err == nil {
				scores[c.ID] = sc.Overall
			}
		}
		ascending := p.Ordering == OrderScoreAsc
		sort.SliceStable(clips, func(i, j int) bool {
			si, sj := scores[clips[i].ID], scores[clips[j].ID]
			if ascending {
				return si < sj
			}
			return si > sj
		})
	case OrderShuffle:
		seed := p.ShuffleSeed
		if seed == 0 {
			seed = 42
		}
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(clips), func(i, j int) { clips[i], clips[j] = clips[j], clips[i] })
	default:
		// chronological: ascending recorded_at; clips with no recorded
		// time sort first.
		sort.SliceStable(clips, func(i, j int) bool {
			return clips[i].RecordedAt.Time.Before(clips[j].RecordedAt.Time)
		})
	}
	return nil
}
