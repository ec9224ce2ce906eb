package libstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "library.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClaim_HighestPriorityFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "thumb", 8, "{}", "lib-1", nil, nil)
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "sprite", 3, "{}", "lib-1", nil, nil)
	require.NoError(t, err)

	job, err := s.Claim(ctx, "host:1", 300, 5, nil)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "thumb", job.Kind)
	require.Equal(t, JobRunning, job.Status)
	require.NotEmpty(t, job.RunToken)
}

func TestClaim_NoneAvailableReturnsNilNotError(t *testing.T) {
	s := openTestStore(t)
	job, err := s.Claim(context.Background(), "host:1", 300, 5, nil)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestCompleteWithWrongRunTokenIsSilentNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "hash_full", 1, "{}", "lib-1", nil, nil)
	require.NoError(t, err)
	job, err := s.Claim(ctx, "host:1", 300, 5, nil)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	require.NoError(t, s.Complete(ctx, id, "wrong-token"))

	stillRunning, err := s.getJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobRunning, stillRunning.Status)

	require.NoError(t, s.Complete(ctx, id, job.RunToken))
	done, err := s.getJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobCompleted, done.Status)
}

func TestFail_RetriesWithBackoffThenTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "proxy", 5, "{}", "lib-1", nil, nil)
	require.NoError(t, err)

	job, err := s.Claim(ctx, "host:1", 300, 2, nil)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, id, job.RunToken, "ffmpeg exited 1", 2, 10))

	retried, err := s.getJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobPending, retried.Status)
	require.Equal(t, 1, retried.Attempts)

	job2, err := s.Claim(ctx, "host:1", 300, 2, nil)
	require.NoError(t, err)
	require.Nil(t, job2, "available_at backoff should delay reclaim")

	_, err = s.db.ExecContext(ctx, `UPDATE jobs SET available_at = ? WHERE id = ?`, time.Now().Add(-time.Second), id)
	require.NoError(t, err)

	job3, err := s.Claim(ctx, "host:1", 300, 2, nil)
	require.NoError(t, err)
	require.NotNil(t, job3)

	require.NoError(t, s.Fail(ctx, id, job3.RunToken, "ffmpeg exited 1 again", 2, 10))
	terminal, err := s.getJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobFailed, terminal.Status)
	require.Equal(t, 2, terminal.Attempts)
}

func TestReclaimExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "hash_full", 1, "{}", "lib-1", nil, nil)
	require.NoError(t, err)
	_, err = s.Claim(ctx, "host:1", 300, 5, nil)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE jobs SET lease_expires_at = ? WHERE id = ?`, time.Now().Add(-time.Minute), id)
	require.NoError(t, err)

	n, err := s.ReclaimExpired(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	reclaimed, err := s.getJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, JobPending, reclaimed.Status)
	require.Empty(t, reclaimed.RunToken)
}
