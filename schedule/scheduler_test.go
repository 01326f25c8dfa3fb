package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-tokengate/core"
)

type channelDispatcher struct {
	dispatched chan string
}

func newChannelDispatcher() *channelDispatcher {
	return &channelDispatcher{dispatched: make(chan string, 64)}
}

func (d *channelDispatcher) Dispatch(_ context.Context, jobName string) (string, error) {
	d.dispatched <- jobName
	return "run-" + jobName, nil
}

func (d *channelDispatcher) waitFor(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-d.dispatched:
		if got != want {
			t.Fatalf("expected dispatch of %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatch of %q", want)
	}
}

func (d *channelDispatcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case got := <-d.dispatched:
		t.Fatalf("unexpected dispatch of %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestScheduler(t *testing.T, clock *fakeClock, dispatcher core.JobDispatcher, specs ...core.JobSpec) *Scheduler {
	t.Helper()
	registry, err := NewRegistry(specs...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	scheduler, err := NewScheduler(registry, dispatcher, WithNowFunc(clock.Now))
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	return scheduler
}

func TestRegistryRejectsDuplicatesAndInvalidSpecs(t *testing.T) {
	if _, err := NewRegistry(
		core.JobSpec{Name: "sync-repos", Interval: time.Hour},
		core.JobSpec{Name: "sync-repos", Interval: 2 * time.Hour},
	); err == nil {
		t.Fatalf("expected duplicate job name to be rejected")
	}
	if _, err := NewRegistry(core.JobSpec{Name: "sync-repos"}); err == nil {
		t.Fatalf("expected zero interval to be rejected")
	}
}

func TestDefaultRegistryCatalog(t *testing.T) {
	registry, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry failed: %v", err)
	}
	if registry.Len() != 20 {
		t.Fatalf("expected 20 jobs, got %d", registry.Len())
	}
	spec, ok := registry.Get("sync-huddles")
	if !ok || spec.Interval != time.Hour {
		t.Fatalf("unexpected sync-huddles spec %+v (ok=%v)", spec, ok)
	}
	if _, ok := registry.Get("sync-nothing"); ok {
		t.Fatalf("expected miss for unknown job")
	}
}

func TestSchedulerNothingFiresBeforeFirstInterval(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	dispatcher := newChannelDispatcher()
	scheduler := newTestScheduler(t, clock, dispatcher,
		core.JobSpec{Name: "sync-huddles", Interval: time.Hour},
	)

	nextDue := map[string]time.Time{"sync-huddles": clock.Now().Add(time.Hour)}
	clock.Advance(59 * time.Minute)
	scheduler.Poll(context.Background(), nextDue)
	dispatcher.expectNone(t)
}

func TestSchedulerFiresWhenDue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	dispatcher := newChannelDispatcher()
	scheduler := newTestScheduler(t, clock, dispatcher,
		core.JobSpec{Name: "sync-huddles", Interval: time.Hour},
		core.JobSpec{Name: "sync-repos", Interval: 16 * time.Hour},
	)

	nextDue := map[string]time.Time{
		"sync-huddles": clock.Now().Add(time.Hour),
		"sync-repos":   clock.Now().Add(16 * time.Hour),
	}

	clock.Advance(time.Hour)
	scheduler.Poll(context.Background(), nextDue)
	dispatcher.waitFor(t, "sync-huddles")
	dispatcher.expectNone(t)

	// The next due instant advances by exactly one interval.
	if want := clock.Now().Add(time.Hour); !nextDue["sync-huddles"].Equal(want) {
		t.Fatalf("expected next due %v, got %v", want, nextDue["sync-huddles"])
	}
}

func TestSchedulerRefiresEachInterval(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	dispatcher := newChannelDispatcher()
	scheduler := newTestScheduler(t, clock, dispatcher,
		core.JobSpec{Name: "sync-shipments", Interval: 2 * time.Hour},
	)

	nextDue := map[string]time.Time{"sync-shipments": clock.Now().Add(2 * time.Hour)}
	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Hour)
		scheduler.Poll(context.Background(), nextDue)
		dispatcher.waitFor(t, "sync-shipments")
	}
	dispatcher.expectNone(t)
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	dispatcher := newChannelDispatcher()
	registry, err := NewRegistry(core.JobSpec{Name: "sync-configs", Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	scheduler, err := NewScheduler(registry, dispatcher,
		WithNowFunc(clock.Now),
		WithPollInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop after cancel")
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	registry, err := NewRegistry(core.JobSpec{Name: "sync-configs", Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if _, err := NewScheduler(nil, newChannelDispatcher()); err == nil {
		t.Fatalf("expected nil registry to be rejected")
	}
	if _, err := NewScheduler(registry, nil); err == nil {
		t.Fatalf("expected nil dispatcher to be rejected")
	}
}
