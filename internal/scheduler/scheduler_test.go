package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/reminder"
)

type fakeDispatcher struct {
	calls []time.Time
	err   error
	ctxOK bool
}

func (f *fakeDispatcher) DispatchDue(ctx context.Context, now time.Time) (reminder.Report, error) {
	f.calls = append(f.calls, now)
	_, f.ctxOK = ctx.Deadline()
	return reminder.Report{Due: 1, Sent: 1}, f.err
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("not a cron", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
	if s.Entries() != 1 {
		t.Errorf("Expected 1 entry, got %d", s.Entries())
	}
}

func TestSchedulerAddDispatchJobDefaults(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	s := NewScheduler(WithLocation(loc))
	defer s.Stop()
	if err := s.AddDispatchJob("", &fakeDispatcher{}, 0); err != nil {
		t.Fatalf("AddDispatchJob failed: %v", err)
	}
	if s.Entries() != 1 {
		t.Errorf("Expected 1 entry, got %d", s.Entries())
	}
}

func TestDispatchTask(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(WithClock(func() time.Time { return now }))
	defer s.Stop()

	d := &fakeDispatcher{}
	s.dispatchTask(d, time.Minute)()
	if len(d.calls) != 1 || !d.calls[0].Equal(now) {
		t.Fatalf("Expected one call at %v, got %v", now, d.calls)
	}
	if !d.ctxOK {
		t.Error("Expected dispatch context to carry a deadline")
	}

	d.err = errors.New("db down")
	s.dispatchTask(d, time.Minute)()
	if len(d.calls) != 2 {
		t.Errorf("Expected failing run to be attempted, got %d calls", len(d.calls))
	}
}
