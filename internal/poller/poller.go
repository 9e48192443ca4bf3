// Package poller implements the client-side polling loop that drives progress
// display after a job is created. The API has no push channel; a poller ticks
// on a fixed interval, fetches the job status, and stops itself the moment
// the job turns terminal.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/clipmaster/clipmaster-api/internal/job"
)

// DefaultInterval is the default polling period.
const DefaultInterval = 2 * time.Second

// FetchFunc fetches the current state of the watched job.
type FetchFunc func(ctx context.Context) (*job.Job, error)

// Callbacks receive polling results. Any callback may be nil. Callbacks are
// invoked from the polling goroutine, never concurrently with each other for
// the same subscription.
type Callbacks struct {
	// OnUpdate fires on every non-terminal status observation.
	OnUpdate func(*job.Job)
	// OnCompleted fires once when the job completes. The clips are on the job.
	OnCompleted func(*job.Job)
	// OnFailed fires once when the job fails. The error message is on the job.
	OnFailed func(*job.Job)
	// OnCancelled fires once when the job is observed cancelled.
	OnCancelled func(*job.Job)
	// OnError fires on fetch errors. Transient errors do not stop the loop.
	OnError func(error)
}

// Poller owns polling subscriptions keyed by job id. Watching a job that is
// already being watched replaces the prior subscription, so at most one
// polling timer exists per job.
type Poller struct {
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// New creates a Poller.
func New(opts ...Option) *Poller {
	p := &Poller{
		interval: DefaultInterval,
		logger:   slog.Default(),
		subs:     make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscription is the handle for one active polling loop. The caller owns it
// and stops it via Stop; the loop also stops itself when the job turns
// terminal or the context is cancelled.
type Subscription struct {
	jobID    string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Stop cancels the subscription. Safe to call multiple times and after the
// loop already finished.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Done is closed when the polling loop has fully exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Watch starts polling a job and returns the subscription handle. Any
// existing subscription for the same job id is stopped first.
func (p *Poller) Watch(ctx context.Context, jobID string, fetch FetchFunc, cb Callbacks) *Subscription {
	sub := &Subscription{
		jobID: jobID,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	p.mu.Lock()
	if prev, ok := p.subs[jobID]; ok {
		prev.Stop()
	}
	p.subs[jobID] = sub
	p.mu.Unlock()

	go p.loop(ctx, sub, fetch, cb)
	return sub
}

// loop is the polling goroutine. Each tick awaits the full status round-trip
// before the next tick is considered, so there is never more than one
// in-flight status call per subscription.
func (p *Poller) loop(ctx context.Context, sub *Subscription, fetch FetchFunc, cb Callbacks) {
	defer close(sub.done)
	defer p.remove(sub)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.stop:
			return
		case <-ticker.C:
		}

		j, err := fetch(ctx)
		if err != nil {
			if errors.Is(err, job.ErrJobNotFound) || ctx.Err() != nil {
				// The job is gone or the caller left. Nothing to poll.
				return
			}
			p.logger.Warn("status fetch failed",
				slog.String("job_id", sub.jobID),
				slog.String("error", err.Error()),
			)
			if cb.OnError != nil {
				cb.OnError(err)
			}
			continue
		}

		if !j.IsTerminal() {
			if cb.OnUpdate != nil {
				cb.OnUpdate(j)
			}
			continue
		}

		switch j.Status {
		case job.StatusCompleted:
			if cb.OnCompleted != nil {
				cb.OnCompleted(j)
			}
		case job.StatusFailed:
			if cb.OnFailed != nil {
				cb.OnFailed(j)
			}
		case job.StatusCancelled:
			if cb.OnCancelled != nil {
				cb.OnCancelled(j)
			}
		}
		return
	}
}

// remove drops the subscription from the registry unless it was already
// replaced by a newer watch for the same job.
func (p *Poller) remove(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[sub.jobID] == sub {
		delete(p.subs, sub.jobID)
	}
}
