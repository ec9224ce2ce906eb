package libstore

import (
	"context"
	"database/sql"
	"time"

	"dadcam.systems/core/internal/dadcamerr"
	"dadcam.systems/core/internal/discovery"
)

// Ingest session statuses (spec §3).
const (
	SessionDiscovering = "discovering"
	SessionIngesting   = "ingesting"
	SessionRescanning  = "rescanning"
	SessionComplete    = "complete"
	SessionFailed      = "failed"
)

// Manifest entry results (spec §3/§4.6).
const (
	EntryPending        = "pending"
	EntryCopying        = "copying"
	EntryCopiedVerified = "copied_verified"
	EntryDedupVerified  = "dedup_verified"
	EntryChanged        = "changed"
	EntryFailed         = "failed"
)

// Ingest error codes (spec §7).
const (
	ErrCodeChangedSinceManifest = "CHANGED_SINCE_MANIFEST"
	ErrCodeDeviceDisconnected   = "DEVICE_DISCONNECTED"
)

// IngestSession spans one ingest job end to end.
type IngestSession struct {
	ID             int64
	JobID          int64
	SourceRoot     string
	DeviceSerial   string
	DeviceLabel    string
	DeviceMount    string
	DeviceCapacity int64
	Status         string
	ManifestHash   string
	RescanHash     string
	SafeToWipeAt   sql.NullTime
	CreatedAt      time.Time
}

// ManifestEntry is one discovered file tracked through the ingest
// pipeline.
type ManifestEntry struct {
	ID             int64
	SessionID      int64
	RelativePath   string
	Size           int64
	MTime          time.Time
	EntryType      string
	ParentEntryID  sql.NullInt64
	FastHash       string
	FullSourceHash string
	AssetID        sql.NullInt64
	Result         string
	ErrorCode      string
	ErrorDetail    string
}

// CreateSession inserts a new ingest session for a job.
func (s *Store) CreateSession(ctx context.Context, jobID int64, sourceRoot string, vol discovery.VolumeInfo) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_sessions (job_id, source_root, device_serial, device_label, device_mount, device_capacity, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, sourceRoot, vol.Serial, vol.Label, vol.Mount, vol.Capacity, SessionDiscovering, time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetSessionStatus transitions a session's status.
func (s *Store) SetSessionStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE ingest_sessions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "ingest_session", idString(id))
}

// SetSafeToWipe sets safe_to_wipe_at exactly once, per spec invariant
// (d); a no-op if already set.
func (s *Store) SetSafeToWipe(ctx context.Context, id int64, manifestHash, rescanHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingest_sessions SET manifest_hash = ?, rescan_hash = ?, safe_to_wipe_at = ?
		 WHERE id = ? AND safe_to_wipe_at IS NULL`,
		manifestHash, rescanHash, time.Now(), id)
	return err
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (IngestSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, source_root, device_serial, device_label, device_mount, device_capacity, status,
		        manifest_hash, rescan_hash, safe_to_wipe_at, created_at
		 FROM ingest_sessions WHERE id = ?`, id)
	var sess IngestSession
	if err := row.Scan(&sess.ID, &sess.JobID, &sess.SourceRoot, &sess.DeviceSerial, &sess.DeviceLabel,
		&sess.DeviceMount, &sess.DeviceCapacity, &sess.Status, &sess.ManifestHash, &sess.RescanHash,
		&sess.SafeToWipeAt, &sess.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return IngestSession{}, dadcamerr.NewNotFoundError("ingest_session", idString(id))
		}
		return IngestSession{}, err
	}
	return sess, nil
}

// InsertManifestEntry adds a discovered file to a session's manifest.
func (s *Store) InsertManifestEntry(ctx context.Context, e ManifestEntry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO manifest_entries (session_id, relative_path, size, mtime, entry_type, parent_entry_id, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.RelativePath, e.Size, e.MTime, e.EntryType, e.ParentEntryID, EntryPending)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateManifestEntryResult records a per-file stage outcome.
func (s *Store) UpdateManifestEntryResult(ctx context.Context, id int64, result, errorCode, errorDetail string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE manifest_entries SET result = ?, error_code = ?, error_detail = ? WHERE id = ?`,
		result, errorCode, errorDetail, id)
	return err
}

// SetManifestEntryHashes records fast/full hash progress on an entry.
func (s *Store) SetManifestEntryHashes(ctx context.Context, id int64, fastHash, fullHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE manifest_entries SET fast_hash = ?, full_source_hash = ? WHERE id = ?`, fastHash, fullHash, id)
	return err
}

// LinkManifestEntryAsset records which asset a manifest entry resolved
// to (new copy or dedup hit).
func (s *Store) LinkManifestEntryAsset(ctx context.Context, id, assetID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE manifest_entries SET asset_id = ? WHERE id = ?`, assetID, id)
	return err
}

// ListPendingManifestEntries returns entries not yet terminal, media
// first then sidecars, per spec §4.6 S2 ordering.
func (s *Store) ListPendingManifestEntries(ctx context.Context, sessionID int64) ([]ManifestEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, relative_path, size, mtime, entry_type, parent_entry_id, fast_hash, full_source_hash,
		        asset_id, result, error_code, error_detail
		 FROM manifest_entries
		 WHERE session_id = ? AND result IN ('pending','copying')
		 ORDER BY CASE entry_type WHEN 'media' THEN 0 ELSE 1 END, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManifestEntry
	for rows.Next() {
		var e ManifestEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.RelativePath, &e.Size, &e.MTime, &e.EntryType, &e.ParentEntryID,
			&e.FastHash, &e.FullSourceHash, &e.AssetID, &e.Result, &e.ErrorCode, &e.ErrorDetail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AllManifestEntriesVerified reports whether every entry in a session
// has reached a verified terminal result, required before a session
// can be marked safe-to-wipe (spec invariant (d)).
func (s *Store) AllManifestEntriesVerified(ctx context.Context, sessionID int64) (bool, error) {
	var unverified int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM manifest_entries WHERE session_id = ? AND result NOT IN ('copied_verified','dedup_verified')`,
		sessionID).Scan(&unverified)
	if err != nil {
		return false, err
	}
	return unverified == 0, nil
}

// FailRemainingEntries marks every still-in-flight entry in a session
// failed with the given error code (used on device disconnect, spec
// §4.6 S3).
func (s *Store) FailRemainingEntries(ctx context.Context, sessionID int64, errorCode string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE manifest_entries SET result = 'failed', error_code = ? WHERE session_id = ? AND result IN ('pending','copying')`,
		errorCode, sessionID)
	return err
}
