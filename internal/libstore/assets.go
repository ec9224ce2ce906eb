package libstore

import (
	"context"
	"database/sql"
	"time"

	"dadcam.systems/core/internal/dadcamerr"
)

// Asset kinds, mirroring spec §3.
const (
	AssetOriginal = "original"
	AssetProxy    = "proxy"
	AssetThumb    = "thumb"
	AssetSprite   = "sprite"
	AssetExport   = "export"
	AssetSidecar  = "sidecar"
)

// Asset is one stored or generated file tracked by the library.
type Asset struct {
	ID              int64
	LibraryID       string
	Kind            string
	RelativePath    string
	Size            int64
	FastHash        string
	FastHashScheme  string
	FullHash        string
	VerifiedAt      sql.NullTime
	VerifiedMethod  string
	PipelineVersion int
	DerivedParams   string
	CreatedAt       time.Time
}

// InsertAsset creates a new asset row.
func (s *Store) InsertAsset(ctx context.Context, a Asset) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (library_id, kind, relative_path, size, fast_hash, fast_hash_scheme, full_hash,
		                     verified_at, verified_method, pipeline_version, derived_params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.LibraryID, a.Kind, a.RelativePath, a.Size, a.FastHash, a.FastHashScheme, a.FullHash,
		a.VerifiedAt, a.VerifiedMethod, a.PipelineVersion, a.DerivedParams, a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindByFastHash returns dedup candidates sharing a fast_hash within a
// library (spec §4.6 S2.c).
func (s *Store) FindByFastHash(ctx context.Context, libraryID, fastHash string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, library_id, kind, relative_path, size, fast_hash, fast_hash_scheme, full_hash,
		        verified_at, verified_method, pipeline_version, derived_params, created_at
		 FROM assets WHERE library_id = ? AND fast_hash = ?`, libraryID, fastHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssets(rows)
}

// GetAsset fetches one asset by id.
func (s *Store) GetAsset(ctx context.Context, id int64) (Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, library_id, kind, relative_path, size, fast_hash, fast_hash_scheme, full_hash,
		        verified_at, verified_method, pipeline_version, derived_params, created_at
		 FROM assets WHERE id = ?`, id)
	var a Asset
	if err := scanAsset(row, &a); err != nil {
		if err == sql.ErrNoRows {
			return Asset{}, dadcamerr.NewNotFoundError("asset", idString(id))
		}
		return Asset{}, err
	}
	return a, nil
}

// UpdateAsset rewrites an existing asset row in place, used to
// regenerate a stale derived asset without disturbing its clip_asset_links
// row (spec §4.8: regeneration replaces the file and its recorded
// params, not the link).
func (s *Store) UpdateAsset(ctx context.Context, a Asset) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET relative_path = ?, size = ?, fast_hash = ?, fast_hash_scheme = ?, full_hash = ?,
		                   verified_at = ?, verified_method = ?, pipeline_version = ?, derived_params = ?
		 WHERE id = ?`,
		a.RelativePath, a.Size, a.FastHash, a.FastHashScheme, a.FullHash,
		a.VerifiedAt, a.VerifiedMethod, a.PipelineVersion, a.DerivedParams, a.ID)
	return err
}

// DeleteAsset removes an asset row (caller deletes the file first).
func (s *Store) DeleteAsset(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	return err
}

// SetAssetVerified marks an asset verified by a named method (e.g.
// "copy_readback", "rehash").
func (s *Store) SetAssetVerified(ctx context.Context, id int64, fullHash, method string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET full_hash = ?, verified_at = ?, verified_method = ? WHERE id = ?`,
		fullHash, time.Now(), method, id)
	return err
}

// LinkClipAsset associates an asset with a clip under a role,
// replacing any existing asset in that role (spec invariant (b): at
// most one derived asset per (clip_id, role)).
func (s *Store) LinkClipAsset(ctx context.Context, clipID, assetID int64, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clip_asset_links (clip_id, asset_id, role) VALUES (?, ?, ?)
		 ON CONFLICT(clip_id, role) DO UPDATE SET asset_id = excluded.asset_id`,
		clipID, assetID, role)
	return err
}

// GetClipAsset returns the asset linked to a clip under a role, if any.
func (s *Store) GetClipAsset(ctx context.Context, clipID int64, role string) (Asset, bool, error) {
	var assetID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_id FROM clip_asset_links WHERE clip_id = ? AND role = ?`, clipID, role).Scan(&assetID)
	if err == sql.ErrNoRows {
		return Asset{}, false, nil
	}
	if err != nil {
		return Asset{}, false, err
	}
	a, err := s.GetAsset(ctx, assetID)
	if err != nil {
		return Asset{}, false, err
	}
	return a, true, nil
}

// InsertFingerprint records a relink fingerprint for a clip.
func (s *Store) InsertFingerprint(ctx context.Context, clipID int64, kind, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (clip_id, kind, value) VALUES (?, ?, ?)`, clipID, kind, value)
	return err
}

// FindClipsByFingerprint looks up clips sharing a fingerprint value
// (used for relink after a source volume reattaches under a new path).
func (s *Store) FindClipsByFingerprint(ctx context.Context, kind, value string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT clip_id FROM fingerprints WHERE kind = ? AND value = ?`, kind, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner, a *Asset) error {
	return row.Scan(&a.ID, &a.LibraryID, &a.Kind, &a.RelativePath, &a.Size, &a.FastHash, &a.FastHashScheme,
		&a.FullHash, &a.VerifiedAt, &a.VerifiedMethod, &a.PipelineVersion, &a.DerivedParams, &a.CreatedAt)
}

func scanAssets(rows *sql.Rows) ([]Asset, error) {
	var out []Asset
	for rows.Next() {
		var a Asset
		if err := scanAsset(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
