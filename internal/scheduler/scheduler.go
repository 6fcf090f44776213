// Package scheduler runs the polling pass on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 30 * time.Minute

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron *cron.Cron
	base context.Context
	jobs map[string]cron.EntryID
}

// New creates a scheduler whose jobs derive their context from base, so
// cancelling base aborts running jobs. Overlapping runs of a job are skipped.
func New(base context.Context) *Scheduler {
	logger := slogLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		base: base,
		jobs: make(map[string]cron.EntryID),
	}
}

// Every schedules job to run each interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for job %s", interval, name)
	}
	entryID, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = entryID
	slog.Info("Scheduled job", "job", name, "interval", interval)
	return nil
}

// RunNow executes job once in the calling goroutine.
func (s *Scheduler) RunNow(name string, job Job) {
	s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.base, jobTimeout)
	defer cancel()

	start := time.Now()
	slog.Info("Starting job", "job", name)
	if err := job(ctx); err != nil {
		slog.Error("Job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	slog.Info("Job completed", "job", name, "duration", time.Since(start))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	slog.Info("Stopping scheduler")
	return s.cron.Stop()
}

// NextRun reports when the named job fires next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	id, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// slogLogger adapts cron's logger interface to the default slog logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
