// Package jobs runs the memory maintenance tasks (sweep, dedup, backfill,
// backup) on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/metrics"
)

// cronParser is configured for standard 5-field cron expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is a named maintenance task. Run returns how many rows it touched.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	maxLoad float64
	loadAvg func() (float64, error)

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates a scheduler in the given timezone. When maxLoad is positive,
// runs are skipped while the 1-minute load average is above it.
func New(timezone string, maxLoad float64) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}

	cl := cronLogger{}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:    c,
		maxLoad: maxLoad,
		loadAvg: systemLoad,
		jobs:    make(map[string]Job),
	}, nil
}

func systemLoad() (float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

// Add registers a job. An empty schedule registers it for RunNow only.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	if job.Schedule != "" {
		if _, err := cronParser.Parse(job.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule for %s: %w", job.Name, err)
		}
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(context.Background(), job, true) }); err != nil {
			return err
		}
	}

	s.jobs[job.Name] = job
	logger.Info("job registered", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// RunNow runs a registered job immediately, ignoring the load gate.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("unknown job: %s", name)
	}

	return s.run(ctx, job, false)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs or ctx, whichever is
// first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("jobs still running at shutdown")
	}
}

// Next returns the next scheduled fire time for each scheduled job.
func (s *Scheduler) Next() map[string]time.Time {
	next := make(map[string]time.Time)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, job := range s.jobs {
		if job.Schedule == "" {
			continue
		}
		sched, err := cronParser.Parse(job.Schedule)
		if err != nil {
			continue
		}
		next[name] = sched.Next(now.In(s.cron.Location()))
	}
	return next
}

func (s *Scheduler) run(ctx context.Context, job Job, gated bool) (int, error) {
	runID := uuid.NewString()
	log := logger.With("job", job.Name, "run", runID)

	if gated && s.maxLoad > 0 {
		avg, err := s.loadAvg()
		if err != nil {
			log.Warn("load average unavailable, running anyway", "error", err)
		} else if avg > s.maxLoad {
			log.Info("job skipped, system busy", "load", avg, "max", s.maxLoad)
			metrics.JobRuns.WithLabelValues(job.Name, "skipped").Inc()
			return 0, nil
		}
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		log.Error("job failed", "error", err, "affected", n, "duration", time.Since(start))
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		return n, err
	}

	log.Info("job completed", "affected", n, "duration", time.Since(start))
	metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
	return n, nil
}

// cronLogger routes robfig/cron's logging through the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
