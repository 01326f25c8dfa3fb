package schedule

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokengate/core"
)

// Scheduler fires registry jobs on their fixed intervals via a cooperative
// poll loop. Each poll compares every job's next-due instant against the
// clock and dispatches the ones that are due. Dispatch is asynchronous and
// there is no per-job mutual exclusion: a job whose previous firing is still
// running fires again when its interval elapses.
type Scheduler struct {
	registry   *Registry
	dispatcher core.JobDispatcher
	logger     core.Logger

	pollInterval time.Duration
	now          func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithLogger(logger core.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithPollInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

func WithNowFunc(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(registry *Registry, dispatcher core.JobDispatcher, opts ...SchedulerOption) (*Scheduler, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("schedule: registry with at least one job is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("schedule: dispatcher is required")
	}
	scheduler := &Scheduler{
		registry:     registry,
		dispatcher:   dispatcher,
		logger:       glog.Nop(),
		pollInterval: core.DefaultPollInterval,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(scheduler)
	}
	return scheduler, nil
}

// Run polls until ctx is cancelled. The first due instant for every job is
// one full interval after start; nothing fires at startup.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("schedule: scheduler is nil")
	}
	nextDue := make(map[string]time.Time, s.registry.Len())
	start := s.now()
	for _, spec := range s.registry.Specs() {
		nextDue[spec.Name] = start.Add(spec.Interval)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx, nextDue)
		}
	}
}

// Poll runs a single scheduling pass; exported for deterministic tests.
func (s *Scheduler) Poll(ctx context.Context, nextDue map[string]time.Time) {
	s.poll(ctx, nextDue)
}

func (s *Scheduler) poll(ctx context.Context, nextDue map[string]time.Time) {
	now := s.now()
	for _, spec := range s.registry.Specs() {
		due, ok := nextDue[spec.Name]
		if !ok {
			nextDue[spec.Name] = now.Add(spec.Interval)
			continue
		}
		if now.Before(due) {
			continue
		}
		// Advance from the missed instant, not from now, so drift does not
		// accumulate across slow polls.
		next := due.Add(spec.Interval)
		if !next.After(now) {
			next = now.Add(spec.Interval)
		}
		nextDue[spec.Name] = next
		s.dispatch(ctx, spec.Name)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, jobName string) {
	go func() {
		runID, err := s.dispatcher.Dispatch(ctx, jobName)
		if err != nil {
			s.logger.Error("job dispatch failed", "job_name", jobName, "error", err)
			return
		}
		s.logger.Info("job dispatched", "job_name", jobName, "run_id", runID)
	}()
}
