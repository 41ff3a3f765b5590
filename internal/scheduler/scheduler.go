// Package scheduler provides the time trigger for ResellerBot.
//
// It runs the billing reminder dispatcher (and any other periodic task) on
// cron expressions evaluated in a fixed time zone.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/ResellerBot/internal/reminder"
)

// DefaultDispatchExpr runs the dispatcher every minute.
const DefaultDispatchExpr = "* * * * *"

// DefaultDispatchTimeout bounds one scheduled dispatcher run.
const DefaultDispatchTimeout = 5 * time.Minute

// DueDispatcher is the part of reminder.Dispatcher the scheduler drives.
type DueDispatcher interface {
	DispatchDue(ctx context.Context, now time.Time) (reminder.Report, error)
}

var _ DueDispatcher = (*reminder.Dispatcher)(nil)

// Opts holds scheduler configuration.
type Opts struct {
	Location *time.Location
	Clock    func() time.Time
}

// Option configures a Scheduler.
type Option func(*Opts)

// WithLocation evaluates cron expressions in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithClock overrides the time passed to dispatcher runs.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron  *cron.Cron
	clock func() time.Time
}

// NewScheduler creates and starts a cron scheduler. Jobs that are still
// running when their next tick arrives skip that tick.
func NewScheduler(opts ...Option) *Scheduler {
	cfg := Opts{Location: time.Local, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	c.Start()
	return &Scheduler{cron: c, clock: cfg.Clock}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddDispatchJob runs d.DispatchDue on expr, each run bounded by timeout.
func (s *Scheduler) AddDispatchJob(expr string, d DueDispatcher, timeout time.Duration) error {
	if expr == "" {
		expr = DefaultDispatchExpr
	}
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	if err := s.AddJob(expr, s.dispatchTask(d, timeout)); err != nil {
		slog.Error("Scheduler failed to add reminder dispatch job", "error", err, "expr", expr)
		return err
	}
	slog.Info("Scheduler reminder dispatch job added", "expr", expr, "timeout", timeout)
	return nil
}

func (s *Scheduler) dispatchTask(d DueDispatcher, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		report, err := d.DispatchDue(ctx, s.clock())
		if err != nil {
			slog.Error("Scheduled reminder dispatch failed", "error", err, "date", report.Date, "time", report.Time)
			return
		}
		if report.Due > 0 {
			slog.Debug("Scheduled reminder dispatch done", "due", report.Due, "sent", report.Sent, "failed", report.Failed)
		}
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
