// Package scheduler triggers periodic scrape runs with robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner performs one scrape run and reports how many listings it collected.
type Runner interface {
	ScrapeAll(ctx context.Context) int
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) int

// ScrapeAll calls f.
func (f RunnerFunc) ScrapeAll(ctx context.Context) int { return f(ctx) }

// Config controls the schedule.
type Config struct {
	// Spec is a cron expression or descriptor such as "@every 6h".
	Spec string
	// RunOnStart fires one run immediately so the store is populated before the first tick.
	RunOnStart bool
}

// Scheduler wraps a cron instance with a single scrape job. Overlapping runs are skipped.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	runner Runner
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New validates the spec and builds a stopped Scheduler.
func New(cfg Config, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cfg:    cfg,
		runner: runner,
		logger: logger,
	}, nil
}

// Start registers the job and starts ticking. Runs use a context derived from ctx that is
// canceled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	job := cron.FuncJob(func() { s.run(runCtx) })
	if _, err := s.cron.AddJob(s.cfg.Spec, job); err != nil {
		cancel()
		return fmt.Errorf("cron add job: %w", err)
	}
	s.cancel = cancel
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec))

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(runCtx)
		}()
	}
	return nil
}

// Stop halts ticking, cancels in-flight runs, and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("scheduled scrape starting")
	total := s.runner.ScrapeAll(ctx)
	s.logger.Info("scheduled scrape finished", zap.Int("total_listings", total))
}

// cronLogger routes cron's internal logging to zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
