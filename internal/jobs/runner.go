// Package jobs runs the periodic maintenance tasks. Each job runs once at
// start and then on its interval, and never overlaps with itself.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"geosafe/internal/metrics"
)

var (
	ErrJobRunning = errors.New("job is already running")
	ErrUnknownJob = errors.New("unknown job")
)

// Func is one run of a job.
type Func func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       Func
	mu       sync.Mutex
}

type Runner struct {
	jobs map[string]*job
}

func NewRunner() *Runner {
	return &Runner{jobs: make(map[string]*job)}
}

// Add registers a job. It must be called before Start.
func (r *Runner) Add(name string, interval time.Duration, fn Func) {
	r.jobs[name] = &job{name: name, interval: interval, fn: fn}
}

// Names lists the registered jobs in sorted order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start runs every job until ctx is cancelled. A job whose previous run is
// still going when its tick arrives skips that tick. Start returns once all
// loops have stopped.
func (r *Runner) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.Names() {
		j := r.jobs[name]
		g.Go(func() error {
			r.loop(gctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, j *job) {
	log.Info("job scheduled", "job", j.name, "interval", j.interval)
	if err := r.run(ctx, j); err != nil && !errors.Is(err, ErrJobRunning) {
		log.Error("job failed", "job", j.name, "err", err)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.run(ctx, j)
			switch {
			case errors.Is(err, ErrJobRunning):
				log.Warn("job still running, tick skipped", "job", j.name)
			case err != nil:
				log.Error("job failed", "job", j.name, "err", err)
			}
		}
	}
}

// RunNow runs the named job immediately and waits for it to finish.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return r.run(ctx, j)
}

func (r *Runner) run(ctx context.Context, j *job) error {
	if !j.mu.TryLock() {
		metrics.JobRuns.WithLabelValues(j.name, "skipped").Inc()
		return ErrJobRunning
	}
	defer j.mu.Unlock()

	start := time.Now()
	err := j.fn(ctx)
	metrics.JobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobRuns.WithLabelValues(j.name, "error").Inc()
		return err
	}
	metrics.JobRuns.WithLabelValues(j.name, "ok").Inc()
	return nil
}
