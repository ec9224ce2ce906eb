// Package appstore is the app-level SQLite store: the registry of
// known libraries, user camera profiles, registered devices, the
// bundled-profile cache, and small key/value settings. It survives
// independently of any one library (adapted from the teacher's
// internal/db connection/migration pattern, retargeted from Postgres
// to an embedded pure-Go SQLite driver).
package appstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"dadcam.systems/core/internal/camera"
	"dadcam.systems/core/internal/dadcamerr"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store wraps the app database connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path with the
// pragmas the store relies on: foreign keys and WAL journaling.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, dadcamerr.NewIOError(path, err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate runs embedded goose migrations up to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpToContext(ctx, s.db, "migrations", goose.MaxVersion)
}

// CreateLibrary registers a new library root.
func (s *Store) CreateLibrary(ctx context.Context, uuid, rootPath, ingestMode string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO libraries (uuid, root_path, ingest_mode, created_at) VALUES (?, ?, ?, ?)`,
		uuid, rootPath, ingestMode, time.Now())
	return err
}

// Library is the app store's record of one library registration.
type Library struct {
	UUID       string
	RootPath   string
	IngestMode string
	CreatedAt  time.Time
}

// ListLibraries returns all registered libraries.
func (s *Store) ListLibraries(ctx context.Context) ([]Library, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, root_path, ingest_mode, created_at FROM libraries ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Library
	for rows.Next() {
		var l Library
		if err := rows.Scan(&l.UUID, &l.RootPath, &l.IngestMode, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLibrary fetches one library by uuid.
func (s *Store) GetLibrary(ctx context.Context, uuid string) (Library, error) {
	var l Library
	row := s.db.QueryRowContext(ctx, `SELECT uuid, root_path, ingest_mode, created_at FROM libraries WHERE uuid = ?`, uuid)
	if err := row.Scan(&l.UUID, &l.RootPath, &l.IngestMode, &l.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Library{}, dadcamerr.NewNotFoundError("library", uuid)
		}
		return Library{}, err
	}
	return l, nil
}

// RegisterDevice inserts a new registered device with no profile
// assigned.
func (s *Store) RegisterDevice(ctx context.Context, uuid, name string, usbFingerprints []string, serial string) error {
	encoded, err := camera.EncodeUSBFingerprints(usbFingerprints)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO registered_devices (uuid, name, usb_fingerprints, serial_number, profile_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'none', ?, ?)`,
		uuid, name, encoded, serial, now, now)
	return err
}

// AssignDeviceProfile binds a registered device to a profile.
func (s *Store) AssignDeviceProfile(ctx context.Context, uuid string, profileType camera.ProfileType, profileRef string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registered_devices SET profile_type = ?, profile_ref = ?, updated_at = ? WHERE uuid = ?`,
		string(profileType), profileRef, time.Now(), uuid)
	if err != nil {
		return err
	}
	return checkAffected(res, "registered_device", uuid)
}

// ListDevices returns every registered device, projected for the
// matcher.
func (s *Store) ListDevices(ctx context.Context) ([]camera.RegisteredDeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, name, usb_fingerprints, serial_number, profile_type, profile_ref, created_at, updated_at FROM registered_devices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []camera.RegisteredDeviceRecord
	for rows.Next() {
		var d camera.RegisteredDeviceRecord
		var fpRaw, ptype string
		if err := rows.Scan(&d.UUID, &d.Name, &fpRaw, &d.SerialNumber, &ptype, &d.ProfileRef, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		fps, err := camera.DecodeUSBFingerprints(fpRaw)
		if err != nil {
			return nil, err
		}
		d.USBFingerprints = fps
		d.ProfileType = camera.ProfileType(ptype)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateUserProfile inserts a new user camera profile at version 1.
func (s *Store) CreateUserProfile(ctx context.Context, p camera.StagedProfile) (string, error) {
	uuid := newUUID()
	matchRulesJSON, transformRulesJSON, err := marshalRules(p.MatchRules, p.TransformRules)
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (uuid, name, version, match_rules, transform_rules, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?, ?, ?)`,
		uuid, p.Name, matchRulesJSON, transformRulesJSON, now, now)
	return uuid, err
}

// UpdateUserProfile overwrites an existing user profile and bumps its
// version (spec §3: "version (bumped on edit)").
func (s *Store) UpdateUserProfile(ctx context.Context, uuid string, p camera.StagedProfile) error {
	matchRulesJSON, transformRulesJSON, err := marshalRules(p.MatchRules, p.TransformRules)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_profiles SET name = ?, version = version + 1, match_rules = ?, transform_rules = ?, updated_at = ?
		 WHERE uuid = ?`,
		p.Name, matchRulesJSON, transformRulesJSON, time.Now(), uuid)
	if err != nil {
		return err
	}
	return checkAffected(res, "user_profile", uuid)
}

// ListUserProfiles returns every user-authored profile.
func (s *Store) ListUserProfiles(ctx context.Context) ([]camera.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, name, version, match_rules, transform_rules FROM user_profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []camera.UserProfile
	for rows.Next() {
		var p camera.UserProfile
		var matchRaw, transformRaw string
		if err := rows.Scan(&p.UUID, &p.Name, &p.Version, &matchRaw, &transformRaw); err != nil {
			return nil, err
		}
		if err := unmarshalRules(matchRaw, transformRaw, &p.MatchRules, &p.TransformRules); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteUserProfile removes a user profile.
func (s *Store) DeleteUserProfile(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE uuid = ?`, uuid)
	if err != nil {
		return err
	}
	return checkAffected(res, "user_profile", uuid)
}

// SyncBundledProfiles replaces the bundled-profile cache in full: rows
// not present in profiles are deleted, matching spec §6's "full
// replace" sync semantics.
func (s *Store) SyncBundledProfiles(ctx context.Context, profiles []camera.BundledProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bundled_profiles`); err != nil {
		return err
	}
	for _, p := range profiles {
		matchRulesJSON, transformRulesJSON, err := marshalRules(p.MatchRules, p.TransformRules)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bundled_profiles (slug, name, version, match_rules, transform_rules, is_system, deletable, category)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Slug, p.Name, p.Version, matchRulesJSON, transformRulesJSON, p.IsSystem, p.Deletable, p.Category); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListBundledProfiles returns the synced bundled-profile cache.
func (s *Store) ListBundledProfiles(ctx context.Context) ([]camera.BundledProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slug, name, version, match_rules, transform_rules, is_system, deletable, category FROM bundled_profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []camera.BundledProfile
	for rows.Next() {
		var p camera.BundledProfile
		var matchRaw, transformRaw string
		if err := rows.Scan(&p.Slug, &p.Name, &p.Version, &matchRaw, &transformRaw, &p.IsSystem, &p.Deletable, &p.Category); err != nil {
			return nil, err
		}
		if err := unmarshalRules(matchRaw, transformRaw, &p.MatchRules, &p.TransformRules); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetSetting reads a key/value setting, returning ok=false if unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting upserts a key/value setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dadcamerr.NewNotFoundError(entity, id)
	}
	return nil
}

func marshalRules(m camera.MatchRules, t camera.TransformRules) (string, string, error) {
	mb, err := json.Marshal(m)
	if err != nil {
		return "", "", err
	}
	tb, err := json.Marshal(t)
	if err != nil {
		return "", "", err
	}
	return string(mb), string(tb), nil
}

func unmarshalRules(matchRaw, transformRaw string, m *camera.MatchRules, t *camera.TransformRules) error {
	if err := json.Unmarshal([]byte(matchRaw), m); err != nil {
		return err
	}
	return json.Unmarshal([]byte(transformRaw), t)
}

func newUUID() string {
	return uuid.NewString()
}
