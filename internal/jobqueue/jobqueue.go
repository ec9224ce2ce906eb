// Package jobqueue runs a fixed pool of worker goroutines that poll
// internal/libstore's durable job queue, plus a process-wide registry
// of cancel flags keyed by job id. Grounded on
// original_source/jobs/mod.rs (claim/complete/fail/reclaim semantics,
// cancel-flag registry) and the teacher's cmd/ingest/main.go dispatch
// loop shape (poll ticker + wake channel), now generalized from a
// single ingest-only loop into a kind-dispatching worker pool.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"dadcam.systems/core/internal/dadcamerr"
	"dadcam.systems/core/internal/libstore"
)

// Handler processes one claimed job and returns an error to trigger
// the retry/backoff machinery, or nil on success.
type Handler func(ctx context.Context, job *libstore.Job) error

// Config tunes worker pool behavior; field names mirror
// internal/config.Config so callers can pass it through directly.
type Config struct {
	WorkerCount     int
	LeaseSeconds    int
	MaxAttempts     int
	BackoffBaseSecs int
	PollInterval    time.Duration
}

// Pool runs Config.WorkerCount goroutines against a single library's
// job queue, dispatching claimed jobs to kind-registered Handlers.
type Pool struct {
	store    *libstore.Store
	cfg      Config
	handlers map[string]Handler
	workerID string
	log      *slog.Logger

	wake chan struct{}
}

var (
	cancelMu    sync.Mutex
	cancelFlags = map[int64]*atomic.Bool{}
)

// RegisterCancellable creates (or resets) a cancel flag for a job id,
// returning it so the caller can poll it without going through the
// registry again.
func RegisterCancellable(jobID int64) *atomic.Bool {
	cancelMu.Lock()
	defer cancelMu.Unlock()
	flag := &atomic.Bool{}
	cancelFlags[jobID] = flag
	return flag
}

// Cancel sets a job's cancel flag, if one is registered. No-op if the
// job isn't currently running under this process.
func Cancel(jobID int64) {
	cancelMu.Lock()
	defer cancelMu.Unlock()
	if flag, ok := cancelFlags[jobID]; ok {
		flag.Store(true)
	}
}

// Unregister removes a job's cancel flag once it finishes.
func Unregister(jobID int64) {
	cancelMu.Lock()
	defer cancelMu.Unlock()
	delete(cancelFlags, jobID)
}

// IsCancelled reports whether a job's cancel flag is set.
func IsCancelled(jobID int64) bool {
	cancelMu.Lock()
	flag, ok := cancelFlags[jobID]
	cancelMu.Unlock()
	return ok && flag.Load()
}

// New builds a worker pool against store, dispatching by job kind.
func New(store *libstore.Store, cfg Config, handlers map[string]Handler, log *slog.Logger) *Pool {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &Pool{
		store:    store,
		cfg:      cfg,
		handlers: handlers,
		workerID: fmt.Sprintf("%s:%d", hostname(), os.Getpid()),
		log:      log,
		wake:     make(chan struct{}, 1),
	}
}

// Wake nudges all idle workers to poll immediately instead of waiting
// for the next tick (used right after Enqueue so a freshly added job
// doesn't wait out a full poll interval).
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run starts cfg.WorkerCount goroutines and blocks until ctx is
// cancelled, then waits for in-flight jobs to finish.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.runWorker(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, n int) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		for p.claimAndRun(ctx) {
		}
	}
}

// claimAndRun claims and processes at most one job, returning true if
// it found one (so the caller can immediately try for another without
// waiting for the next tick).
func (p *Pool) claimAndRun(ctx context.Context) bool {
	var kinds []string
	for k := range p.handlers {
		kinds = append(kinds, k)
	}

	job, err := p.store.Claim(ctx, p.workerID, p.cfg.LeaseSeconds, p.cfg.MaxAttempts, kinds)
	if err != nil {
		p.log.Error("job claim failed", "error", err)
		return false
	}
	if job == nil {
		return false
	}

	handler, ok := p.handlers[job.Kind]
	if !ok {
		p.log.Error("no handler registered for job kind", "kind", job.Kind, "job_id", job.ID)
		_ = p.store.Fail(ctx, job.ID, job.RunToken, "no handler registered", p.cfg.MaxAttempts, p.cfg.BackoffBaseSecs)
		return true
	}

	RegisterCancellable(job.ID)
	defer Unregister(job.ID)

	runErr := handler(ctx, job)
	if runErr != nil {
		if errors.Is(runErr, dadcamerr.Cancelled) {
			p.log.Info("job cancelled", "kind", job.Kind, "job_id", job.ID)
			if err := p.store.Cancel(ctx, job.ID); err != nil {
				p.log.Error("failed to record job cancellation", "error", err)
			}
			return true
		}
		p.log.Warn("job failed", "kind", job.Kind, "job_id", job.ID, "error", runErr)
		if err := p.store.Fail(ctx, job.ID, job.RunToken, runErr.Error(), p.cfg.MaxAttempts, p.cfg.BackoffBaseSecs); err != nil {
			p.log.Error("failed to record job failure", "error", err)
		}
		return true
	}

	if err := p.store.Complete(ctx, job.ID, job.RunToken); err != nil {
		p.log.Error("failed to record job completion", "error", err)
	}
	return true
}

// ReclaimLoop periodically resets expired leases back to pending,
// running until ctx is cancelled.
func (p *Pool) ReclaimLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.ReclaimExpired(ctx, p.cfg.MaxAttempts)
			if err != nil {
				p.log.Error("reclaim failed", "error", err)
				continue
			}
			if n > 0 {
				p.log.Info("reclaimed expired job leases", "count", n)
				p.Wake()
			}
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
