package libstore

import (
	"context"
	"database/sql"
	"time"

	"dadcam.systems/core/internal/dadcamerr"
)

// Clip is one ingested original, with its resolved camera reference
// and basic media fields (spec §3).
type Clip struct {
	ID                 int64
	LibraryID          string
	OriginalAssetID    int64
	MediaKind          string
	Title              string
	DurationMS         int64
	Width              int
	Height             int
	FPS                float64
	Codec              string
	AudioCodec         string
	RecordedAt         sql.NullTime
	TimestampSource    string
	TimestampEstimated bool
	SourceFolder       string
	ProfileType        string
	ProfileRef         string
	DeviceUUID         string
	CreatedAt          time.Time
}

// InsertClip creates a new clip row.
func (s *Store) InsertClip(ctx context.Context, c Clip) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clips (library_id, original_asset_id, media_kind, title, duration_ms, width, height, fps,
		                    codec, audio_codec, recorded_at, timestamp_source, timestamp_estimated, source_folder,
		                    profile_type, profile_ref, device_uuid, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.LibraryID, c.OriginalAssetID, c.MediaKind, c.Title, c.DurationMS, c.Width, c.Height, c.FPS,
		c.Codec, c.AudioCodec, c.RecordedAt, c.TimestampSource, c.TimestampEstimated, c.SourceFolder,
		c.ProfileType, c.ProfileRef, c.DeviceUUID, c.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetClip fetches one clip by id.
func (s *Store) GetClip(ctx context.Context, id int64) (Clip, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, library_id, original_asset_id, media_kind, title, duration_ms, width, height, fps,
		        codec, audio_codec, recorded_at, timestamp_source, timestamp_estimated, source_folder,
		        profile_type, profile_ref, device_uuid, created_at
		 FROM clips WHERE id = ?`, id)
	var c Clip
	if err := scanClip(row, &c); err != nil {
		if err == sql.ErrNoRows {
			return Clip{}, dadcamerr.NewNotFoundError("clip", idString(id))
		}
		return Clip{}, err
	}
	return c, nil
}

// UpdateClipCameraRefs writes the matcher's resolved stable camera
// references onto a clip.
func (s *Store) UpdateClipCameraRefs(ctx context.Context, clipID int64, profileType, profileRef, deviceUUID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clips SET profile_type = ?, profile_ref = ?, device_uuid = ? WHERE id = ?`,
		profileType, profileRef, deviceUUID, clipID)
	if err != nil {
		return err
	}
	return checkAffected(res, "clip", idString(clipID))
}

// ListClipsNeedingRematch returns clips whose stable camera ref is
// still the generic fallback or unset (spec §4.10 rematch trigger).
func (s *Store) ListClipsNeedingRematch(ctx context.Context, libraryID string) ([]Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, library_id, original_asset_id, media_kind, title, duration_ms, width, height, fps,
		        codec, audio_codec, recorded_at, timestamp_source, timestamp_estimated, source_folder,
		        profile_type, profile_ref, device_uuid, created_at
		 FROM clips
		 WHERE library_id = ? AND (profile_ref = '' OR profile_ref = 'generic-fallback' OR profile_ref IS NULL)`,
		libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Clip
	for rows.Next() {
		var c Clip
		if err := scanClip(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InvalidateProxy resets a clip's proxy asset pipeline_version to 0,
// forcing regeneration on the next derived-asset job (used after a
// rematch resolves a non-generic profile).
func (s *Store) InvalidateProxy(ctx context.Context, clipID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET pipeline_version = 0
		 WHERE id = (SELECT asset_id FROM clip_asset_links WHERE clip_id = ? AND role = 'proxy')`,
		clipID)
	return err
}

// ListClipsByLibrary returns all clips in a library, newest first.
func (s *Store) ListClipsByLibrary(ctx context.Context, libraryID string) ([]Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, library_id, original_asset_id, media_kind, title, duration_ms, width, height, fps,
		        codec, audio_codec, recorded_at, timestamp_source, timestamp_estimated, source_folder,
		        profile_type, profile_ref, device_uuid, created_at
		 FROM clips WHERE library_id = ? ORDER BY recorded_at DESC`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Clip
	for rows.Next() {
		var c Clip
		if err := scanClip(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClip(row rowScanner, c *Clip) error {
	return row.Scan(&c.ID, &c.LibraryID, &c.OriginalAssetID, &c.MediaKind, &c.Title, &c.DurationMS, &c.Width,
		&c.Height, &c.FPS, &c.Codec, &c.AudioCodec, &c.RecordedAt, &c.TimestampSource, &c.TimestampEstimated,
		&c.SourceFolder, &c.ProfileType, &c.ProfileRef, &c.DeviceUUID, &c.CreatedAt)
}
