package libstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"dadcam.systems/core/internal/dadcamerr"
)

// Job statuses, mirroring spec §3's Job entity.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job is one row of the durable leased job queue.
type Job struct {
	ID             int64
	Kind           string
	Status         string
	Priority       int
	Attempts       int
	LastError      string
	Progress       int
	Payload        string
	ClaimedBy      string
	RunToken       string
	LeaseExpiresAt sql.NullTime
	HeartbeatAt    sql.NullTime
	LibraryID      string
	ClipID         sql.NullInt64
	AssetID        sql.NullInt64
	CreatedAt      time.Time
}

// Enqueue inserts a new pending job, immediately available for claim.
func (s *Store) Enqueue(ctx context.Context, kind string, priority int, payload string, libraryID string, clipID, assetID *int64) (int64, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (kind, status, priority, payload, available_at, library_id, clip_id, asset_id, created_at)
		 VALUES (?, 'pending', ?, ?, ?, ?, ?, ?, ?)`,
		kind, priority, payload, now, libraryID, nullableInt64(clipID), nullableInt64(assetID), now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Claim atomically selects the highest-priority, oldest eligible
// pending job (optionally restricted to kinds), marks it running under
// a fresh run_token, and returns it. Returns (nil, nil) if none is
// available — not finding work is not an error.
func (s *Store) Claim(ctx context.Context, workerID string, leaseSeconds int, maxAttempts int, kinds []string) (*Job, error) {
	now := time.Now()
	runToken := uuid.NewString()
	lease := now.Add(time.Duration(leaseSeconds) * time.Second)

	var kindClause string
	args := []any{maxAttempts, now}
	if len(kinds) > 0 {
		kindClause = " AND kind IN (" + placeholders(len(kinds)) + ")"
		for _, k := range kinds {
			args = append(args, k)
		}
	}

	var id int64
	query := `SELECT id FROM jobs WHERE status = 'pending' AND attempts < ? AND available_at <= ?` + kindClause +
		` ORDER BY priority DESC, available_at ASC LIMIT 1`
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', claimed_by = ?, run_token = ?, lease_expires_at = ?, heartbeat_at = ?, started_at = ?
		 WHERE id = ? AND status = 'pending'`,
		workerID, runToken, lease, now, now, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the claim race to another worker between select and update.
		return nil, nil
	}

	return s.getJob(ctx, id)
}

func (s *Store) getJob(ctx context.Context, id int64) (*Job, error) {
	var j Job
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, priority, attempts, last_error, progress, payload, claimed_by, run_token,
		        lease_expires_at, heartbeat_at, library_id, clip_id, asset_id, created_at
		 FROM jobs WHERE id = ?`, id)
	if err := row.Scan(&j.ID, &j.Kind, &j.Status, &j.Priority, &j.Attempts, &j.LastError, &j.Progress, &j.Payload,
		&j.ClaimedBy, &j.RunToken, &j.LeaseExpiresAt, &j.HeartbeatAt, &j.LibraryID, &j.ClipID, &j.AssetID, &j.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, dadcamerr.NewNotFoundError("job", idString(id))
		}
		return nil, err
	}
	return &j, nil
}

// UpdateProgress bumps progress and the heartbeat under run_token
// ownership. It does NOT extend the lease (spec §4.7: renewal is a
// separate operation). A run_token mismatch is a silent no-op — the
// caller's claim is stale.
func (s *Store) UpdateProgress(ctx context.Context, id int64, runToken string, progress int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ?, heartbeat_at = ? WHERE id = ? AND run_token = ? AND status = 'running'`,
		progress, time.Now(), id, runToken)
	return err
}

// RenewLease extends lease_expires_at under run_token ownership.
func (s *Store) RenewLease(ctx context.Context, id int64, runToken string, leaseSeconds int) error {
	lease := time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET lease_expires_at = ? WHERE id = ? AND run_token = ? AND status = 'running'`,
		lease, id, runToken)
	return err
}

// Complete marks a claimed job completed. A run_token mismatch is a
// silent no-op (stale worker per spec §4.7).
func (s *Store) Complete(ctx context.Context, id int64, runToken string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'completed', finished_at = ? WHERE id = ? AND run_token = ? AND status = 'running'`,
		time.Now(), id, runToken)
	return err
}

// Fail records a job failure under run_token ownership. If attempts
// remain, the job is reset to pending with exponential backoff
// (base * 2^(attempts-1)); otherwise it becomes terminally failed.
func (s *Store) Fail(ctx context.Context, id int64, runToken, errMsg string, maxAttempts int, backoffBaseSeconds int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts int
	err = tx.QueryRowContext(ctx,
		`SELECT attempts FROM jobs WHERE id = ? AND run_token = ? AND status = 'running'`, id, runToken).Scan(&attempts)
	if err == sql.ErrNoRows {
		// Stale worker: run_token no longer matches. Silent no-op.
		return nil
	}
	if err != nil {
		return err
	}

	attempts++
	if attempts < maxAttempts {
		backoff := time.Duration(backoffBaseSeconds) * time.Second * (1 << (attempts - 1))
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, claimed_by = '', run_token = '',
			        lease_expires_at = NULL, available_at = ? WHERE id = ?`,
			attempts, errMsg, time.Now().Add(backoff), id)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, finished_at = ? WHERE id = ?`,
			attempts, errMsg, time.Now(), id)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ReclaimExpired resets any running job whose lease has expired back
// to pending, making it available for re-claim. Returns the count
// reclaimed.
func (s *Store) ReclaimExpired(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', claimed_by = '', run_token = '', lease_expires_at = NULL
		 WHERE status = 'running' AND lease_expires_at < ? AND attempts < ?`,
		time.Now(), maxAttempts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Cancel marks a job cancelled regardless of run_token, used when an
// operator cancels a still-pending or actively-running job by id.
func (s *Store) Cancel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', finished_at = ? WHERE id = ? AND status IN ('pending','running')`,
		time.Now(), id)
	if err != nil {
		return err
	}
	return checkAffected(res, "job", idString(id))
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
