// Package libstore is the per-library SQLite store: clips, assets,
// jobs, ingest sessions, manifest entries, scores, events, and
// recipes. Each library owns exactly one libstore database; the
// daemon opens it as .dadcam/library.db under the library root. Adapted from the teacher's connection/migration pattern
// (internal/db/database.go), retargeted to an embedded SQLite file per
// library instead of one shared Postgres cluster.
package libstore

import (
	"context"
	"database/sql"
	"embed"
	"strconv"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"dadcam.systems/core/internal/dadcamerr"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store wraps one library's database connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path.
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

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
