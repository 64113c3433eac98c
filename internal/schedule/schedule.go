// Package schedule triggers pipeline runs on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Schedule is a parsed cron expression bound to a timezone.
type Schedule struct {
	Expr     string
	Timezone string

	spec cron.Schedule
	loc  *time.Location
}

// Parse validates expr and tz. An empty tz means the clock's own location.
func Parse(expr, tz string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("cron expression is required")
	}
	spec, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	s := &Schedule{Expr: expr, Timezone: strings.TrimSpace(tz), spec: spec}
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
		s.loc = loc
	}
	return s, nil
}

// Next returns the first activation strictly after now.
func (s *Schedule) Next(now time.Time) time.Time {
	if s.loc != nil {
		now = now.In(s.loc)
	}
	return s.spec.Next(now)
}

// Runner performs one scheduled run.
type Runner func(ctx context.Context) error

// Scheduler calls a Runner whenever its schedule comes due. Runs never
// overlap: the loop waits for a run to finish before checking again.
type Scheduler struct {
	run          Runner
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu       sync.Mutex
	schedule *Schedule
	next     time.Time
	lastRun  time.Time
	lastErr  error
	started  bool
	wg       sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With("component", "schedule")
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the loop checks for a due run.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// New creates a scheduler. The first run is due at the schedule's next
// activation after construction.
func New(schedule *Schedule, run Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		run:          run,
		logger:       slog.Default().With("component", "schedule"),
		now:          time.Now,
		tickInterval: time.Second,
		schedule:     schedule,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.next = schedule.Next(s.now())
	return s
}

// Start runs the loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	next := s.next
	s.mu.Unlock()

	s.logger.Info("scheduler started", "next_run", next)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the loop, including any run in progress, to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs the Runner if a run is due and reports whether it did.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	now := s.now()
	s.mu.Lock()
	if s.next.IsZero() || now.Before(s.next) {
		s.mu.Unlock()
		return false
	}
	s.lastRun = now
	s.mu.Unlock()

	err := s.run(ctx)
	if err != nil {
		s.logger.Warn("scheduled run failed", "error", err)
	}

	s.mu.Lock()
	s.lastErr = err
	// Activations missed while the run was in progress are skipped.
	s.next = s.schedule.Next(s.now())
	next := s.next
	s.mu.Unlock()
	s.logger.Info("next run scheduled", "next_run", next)
	return true
}

// Reschedule swaps the schedule, e.g. after a config reload. The next run
// is recomputed from now.
func (s *Scheduler) Reschedule(schedule *Schedule) {
	if schedule == nil {
		return
	}
	s.mu.Lock()
	changed := s.schedule.Expr != schedule.Expr || s.schedule.Timezone != schedule.Timezone
	s.schedule = schedule
	s.next = schedule.Next(s.now())
	next := s.next
	s.mu.Unlock()
	if changed {
		s.logger.Info("schedule changed", "cron", schedule.Expr, "timezone", schedule.Timezone, "next_run", next)
	}
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Cron    string
	NextRun time.Time
	LastRun time.Time
	LastErr error
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Cron:    s.schedule.Expr,
		NextRun: s.next,
		LastRun: s.lastRun,
		LastErr: s.lastErr,
	}
}
