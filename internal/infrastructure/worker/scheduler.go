package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to the Job interface
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string                  { return j.JobName }
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Scheduler runs jobs on cron schedules. Schedules use the standard five
// field syntax and are evaluated in UTC. A run is skipped when the previous
// run of the same job is still in progress.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	timeout time.Duration
	ctx     context.Context
}

// NewScheduler creates a scheduler. Each run is bounded by timeout when it is positive.
func NewScheduler(logger *zap.Logger, timeout time.Duration) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		jobs:    make(map[string]Job),
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Name implements Worker
func (s *Scheduler) Name() string {
	return "scheduler"
}

// Schedule registers a job under a cron spec. An empty spec registers the job
// for RunOnce only.
func (s *Scheduler) Schedule(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.execute(job) }); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, job.Name(), err)
		}
	}
	s.jobs[job.Name()] = job

	s.logger.Info("Job registered", zap.String("job", job.Name()), zap.String("schedule", spec))
	return nil
}

// Start implements Worker. Runs use ctx for values and cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	return nil
}

// Stop implements Worker and waits for running jobs
func (s *Scheduler) Stop() error {
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce runs a registered job immediately on the caller's goroutine
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %q, registered: %v", name, s.JobNames())
	}
	return s.run(ctx, job)
}

// JobNames returns the registered job names sorted
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) execute(job Job) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	if ctx.Err() != nil {
		return
	}
	_ = s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	fields := []zap.Field{zap.String("job", job.Name()), zap.Duration("duration", time.Since(start))}
	if err != nil {
		s.logger.Error("Job failed", append(fields, zap.Error(err))...)
		return err
	}
	s.logger.Info("Job finished", fields...)
	return nil
}

// cronLogger routes cron's internal logging to zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
