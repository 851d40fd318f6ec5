// Package worker runs verification episodes in the background. The
// attempt row is the only record of an episode's lifecycle; the runner
// holds no state a restart could lose.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"kyb/internal/enrichment/metrics"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	"kyb/pkg/requestcontext"
)

const (
	DefaultEpisodeTimeout = 2 * time.Minute
	DefaultConcurrency    = 16
)

// EpisodeRunner executes one attempt to a terminal status.
type EpisodeRunner interface {
	RunEpisode(ctx context.Context, attemptID id.AttemptID) error
}

// Runner launches episodes on goroutines bounded by a semaphore. Episodes
// outlive the request that launched them but not the runner.
type Runner struct {
	episodes EpisodeRunner
	timeout  time.Duration
	sem      *semaphore.Weighted
	logger   *slog.Logger
	metrics  *metrics.Metrics

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

type Option func(*Runner)

func WithEpisodeTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func New(episodes EpisodeRunner, opts ...Option) *Runner {
	base, cancel := context.WithCancel(context.Background())
	r := &Runner{
		episodes: episodes,
		timeout:  DefaultEpisodeTimeout,
		sem:      semaphore.NewWeighted(DefaultConcurrency),
		logger:   slog.Default(),
		base:     base,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Launch starts the episode and returns immediately. The episode keeps the
// principal and request id of ctx but not its cancellation.
func (r *Runner) Launch(ctx context.Context, attemptID id.AttemptID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("runner is shutting down: %w", sentinel.ErrUnavailable)
	}
	r.wg.Add(1)
	go r.run(requestcontext.CarryInto(r.base, ctx), attemptID)
	return nil
}

func (r *Runner) run(ctx context.Context, attemptID id.AttemptID) {
	defer r.wg.Done()
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.logger.WarnContext(ctx, "episode not started before shutdown",
			"attempt_id", attemptID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	defer r.sem.Release(1)

	r.metrics.EpisodeStarted()
	defer r.metrics.EpisodeFinished()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "episode panicked, attempt left pending",
				"attempt_id", attemptID,
				"panic", rec,
			)
		}
	}()

	err := r.episodes.RunEpisode(ctx, attemptID)
	switch {
	case err == nil:
		r.logger.InfoContext(ctx, "episode finished",
			"attempt_id", attemptID,
			"request_id", requestcontext.RequestID(ctx),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		r.logger.WarnContext(ctx, "episode interrupted, attempt left pending",
			"attempt_id", attemptID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	default:
		r.logger.ErrorContext(ctx, "episode failed",
			"attempt_id", attemptID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// Wait blocks until every launched episode has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting episodes and waits for running ones. When ctx
// ends first the remaining episodes are cancelled; their attempts stay
// PENDING until recovered.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
