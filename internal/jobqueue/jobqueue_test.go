package jobqueue

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
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

func TestPool_RunsRegisteredHandlerAndCompletes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, "thumb", 1, "{}", "lib-1", nil, nil)
	require.NoError(t, err)

	var ran atomic.Bool
	handlers := map[string]Handler{
		"thumb": func(ctx context.Context, job *libstore.Job) error {
			ran.Store(true)
			return nil
		},
	}

	pool := New(store, Config{WorkerCount: 1, LeaseSeconds: 30, MaxAttempts: 3, BackoffBaseSecs: 1, PollInterval: 10 * time.Millisecond},
		handlers, slog.Default())

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	pool.Run(runCtx)

	require.True(t, ran.Load())
	require.Greater(t, id, int64(0))
}

func TestPool_FailedHandlerTriggersRetry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, "proxy", 1, "{}", "lib-1", nil, nil)
	require.NoError(t, err)

	var attempts atomic.Int32
	handlers := map[string]Handler{
		"proxy": func(ctx context.Context, job *libstore.Job) error {
			attempts.Add(1)
			return errors.New("transcode failed")
		},
	}

	pool := New(store, Config{WorkerCount: 1, LeaseSeconds: 30, MaxAttempts: 5, BackoffBaseSecs: 1, PollInterval: 10 * time.Millisecond},
		handlers, slog.Default())

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	pool.Run(runCtx)

	require.GreaterOrEqual(t, attempts.Load(), int32(1))

	reclaimed, err := store.Claim(ctx, "verify-worker", 30, 5, nil)
	require.NoError(t, err)
	require.Nil(t, reclaimed, "retried job should not be immediately reclaimable due to backoff")

	_ = id
}

func TestCancelRegistry(t *testing.T) {
	flag := RegisterCancellable(42)
	require.False(t, IsCancelled(42))
	Cancel(42)
	require.True(t, IsCancelled(42))
	require.True(t, flag.Load())
	Unregister(42)
	require.False(t, IsCancelled(42))
}
