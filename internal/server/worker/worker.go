// Package worker runs tax sync jobs in the background. Jobs come from commits
// and manual retries through Enqueue, and from the database on start, so a
// period left pending, syncing or failed short of the attempt cap by a
// restart is picked up again with the attempts it has left.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/remittance"
	"github.com/sethvargo/go-retry"
)

// Syncer is the part of the tax sync service the worker drives.
type Syncer interface {
	Sync(ctx context.Context, periodID string) error
	Unsynced(ctx context.Context, maxAttempts int) ([]models.UnsyncedPeriod, error)
}

// DefaultBackoff waits attempt^4 + 2 seconds after the given failed attempt:
// 3s, 18s, 83s, 258s.
func DefaultBackoff(attempt int) time.Duration {
	n := time.Duration(attempt)
	return (n*n*n*n + 2) * time.Second
}

type Option func(*Worker)

// WithBackoff replaces DefaultBackoff.
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(w *Worker) { w.backoff = f }
}

// job carries the attempts already spent on the period, so the cap holds
// across restarts.
type job struct {
	periodID string
	spent    int
}

type Worker struct {
	jobs        chan job
	maxAttempts int
	backoff     func(attempt int) time.Duration
	log         logging.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

func New(queueSize, maxAttempts int, log logging.Logger, opts ...Option) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	w := &Worker{
		jobs:        make(chan job, queueSize),
		maxAttempts: maxAttempts,
		backoff:     DefaultBackoff,
		log:         log.With("module", "worker"),
		pending:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue schedules a sync with a full attempt budget without blocking. A
// period that is already queued or running is not queued twice. It returns
// false when the queue is full.
func (w *Worker) Enqueue(periodID string) bool {
	return w.enqueue(job{periodID: periodID})
}

func (w *Worker) enqueue(j job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	periodID := j.periodID
	if _, ok := w.pending[periodID]; ok {
		return true
	}
	select {
	case w.jobs <- j:
		w.pending[periodID] = struct{}{}
		return true
	default:
		return false
	}
}

func (w *Worker) done(periodID string) {
	w.mu.Lock()
	delete(w.pending, periodID)
	w.mu.Unlock()
}

// Run processes jobs until ctx is cancelled and then waits for running jobs.
// Jobs waiting for a retry are abandoned on shutdown; the period keeps its
// failed status and stored attempt count, and the next start resumes it if
// the count is below the cap.
func (w *Worker) Run(ctx context.Context, s Syncer) {
	w.recover(ctx, s)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.log.Info(context.WithoutCancel(ctx), "sync worker stopped")
			return
		case j := <-w.jobs:
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				defer w.done(j.periodID)
				w.process(ctx, s, j)
			}()
		}
	}
}

func (w *Worker) recover(ctx context.Context, s Syncer) {
	periods, err := s.Unsynced(ctx, w.maxAttempts)
	if err != nil {
		w.log.Error(ctx, "failed to list unsynced periods", "error", err)
		return
	}
	for _, p := range periods {
		// a pending or syncing period over the cap came from a manual retry
		// and still gets one attempt
		spent := min(p.Attempts, w.maxAttempts-1)
		if !w.enqueue(job{periodID: p.ID, spent: spent}) {
			w.log.Warn(ctx, "sync queue full, period left for the next start", "period_id", p.ID)
		}
	}
	if len(periods) > 0 {
		w.log.Info(ctx, "recovered unsynced periods", "count", len(periods))
	}
}

func (w *Worker) process(ctx context.Context, s Syncer, j job) {
	periodID := j.periodID
	attempt := j.spent
	backoff := retry.WithMaxRetries(uint64(w.maxAttempts-1-j.spent), retry.BackoffFunc(func() (time.Duration, bool) {
		delay := w.backoff(attempt)
		w.log.Info(ctx, "tax sync retry scheduled", "period_id", periodID, "attempt", attempt, "delay", delay.String())
		return delay, false
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := s.Sync(ctx, periodID)
		if remittance.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		w.log.Info(context.WithoutCancel(ctx), "tax sync abandoned on shutdown", "period_id", periodID, "attempt", attempt)
	case remittance.IsRetryable(err):
		w.log.Error(ctx, "tax sync gave up", "period_id", periodID, "attempts", attempt, "error", err)
	default:
		w.log.Error(ctx, "tax sync failed permanently", "period_id", periodID, "error", err)
	}
}
