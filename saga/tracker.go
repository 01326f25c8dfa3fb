// Package saga tracks the durable lifecycle of scheduled job executions:
// every firing gets a JobRun record that moves queued -> in_progress ->
// completed, and shutdown sweeps whatever is still open to a cancelled
// conclusion.
package saga

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokengate/core"
	"github.com/google/uuid"
)

// JobCatalog answers whether a job name is part of the fixed catalog.
// *schedule.Registry satisfies it.
type JobCatalog interface {
	Get(name string) (core.JobSpec, bool)
}

// runLister is the optional store extension that can enumerate persisted runs
// by status. When the run store provides it, the shutdown sweep also closes
// records whose engine handle was lost (e.g. after a crash-restart).
type runLister interface {
	ListByStatus(ctx context.Context, status core.RunStatus, max int) ([]core.JobRun, error)
}

// Tracker coordinates run records with the execution engine. Dispatch is
// fire-and-forget: the caller gets a run id immediately and the body reports
// its conclusion through the run store when it finishes.
type Tracker struct {
	catalog  JobCatalog
	runs     core.RunRecordStore
	engine   core.ExecutionEngine
	executor core.JobExecutor
	logger   core.Logger
	now      func() time.Time
}

type TrackerOption func(*Tracker)

func WithLogger(logger core.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithNowFunc(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTracker(catalog JobCatalog, runs core.RunRecordStore, engine core.ExecutionEngine, executor core.JobExecutor, opts ...TrackerOption) (*Tracker, error) {
	if runs == nil {
		return nil, fmt.Errorf("saga: run record store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("saga: execution engine is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("saga: job executor is required")
	}
	tracker := &Tracker{
		catalog:  catalog,
		runs:     runs,
		engine:   engine,
		executor: executor,
		logger:   glog.Nop(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(tracker)
	}
	return tracker, nil
}

// Dispatch creates a queued run record for jobName, promotes it to
// in_progress, and hands the body to the engine. It returns the run id
// without waiting for the body.
func (t *Tracker) Dispatch(ctx context.Context, jobName string) (string, error) {
	if t == nil {
		return "", fmt.Errorf("saga: tracker is nil")
	}
	name := strings.TrimSpace(jobName)
	if name == "" {
		return "", goerrors.New("saga: job name is required", goerrors.CategoryBadInput).
			WithTextCode(core.GatewayErrorBadInput)
	}
	if t.catalog != nil {
		if _, ok := t.catalog.Get(name); !ok {
			return "", goerrors.New(fmt.Sprintf("saga: job not in catalog: %s", name), goerrors.CategoryNotFound).
				WithTextCode(core.GatewayErrorJobNotFound)
		}
	}

	now := t.now()
	run, err := t.runs.Create(ctx, core.JobRun{
		RunID:     uuid.NewString(),
		JobName:   name,
		Status:    core.RunStatusQueued,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "saga: create run record").
			WithTextCode(core.GatewayErrorPersistenceFailed)
	}

	if err := run.MarkInProgress(t.now()); err != nil {
		return "", err
	}
	if run, err = t.runs.Update(ctx, run); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "saga: promote run to in_progress").
			WithTextCode(core.GatewayErrorRunUpdateFailed)
	}

	handle := core.RunHandle{RunID: run.RunID, JobName: run.JobName}
	if err := t.engine.Start(ctx, handle, t.runBody(handle)); err != nil {
		t.finishRun(ctx, handle, err)
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "saga: start job body").
			WithTextCode(core.GatewayErrorInternal)
	}

	t.logger.Info("run dispatched", "job_name", run.JobName, "run_id", run.RunID)
	return run.RunID, nil
}

func (t *Tracker) runBody(handle core.RunHandle) core.JobBody {
	return func(ctx context.Context) error {
		execErr := t.executor.Execute(ctx, handle.JobName)
		t.finishRun(ctx, handle, execErr)
		return execErr
	}
}

// finishRun records the body's conclusion. Recording failures are logged and
// swallowed; the shutdown sweep closes anything left open.
func (t *Tracker) finishRun(ctx context.Context, handle core.RunHandle, execErr error) {
	run, err := t.runs.GetByRunID(ctx, handle.RunID)
	if err != nil {
		t.logger.Warn("run record lookup failed",
			"job_name", handle.JobName,
			"run_id", handle.RunID,
			"text_code", core.GatewayErrorRunUpdateFailed,
			"error", err)
		return
	}
	if run.Terminal() {
		return
	}

	conclusion := core.RunConclusionSuccess
	if execErr != nil {
		conclusion = core.RunConclusionFailure
	}
	if err := run.Complete(conclusion, t.now()); err != nil {
		t.logger.Warn("run completion rejected",
			"job_name", handle.JobName,
			"run_id", handle.RunID,
			"text_code", core.GatewayErrorRunUpdateFailed,
			"error", err)
		return
	}
	if _, err := t.runs.Update(ctx, run); err != nil {
		t.logger.Warn("run completion write failed",
			"job_name", handle.JobName,
			"run_id", handle.RunID,
			"text_code", core.GatewayErrorRunUpdateFailed,
			"error", err)
		return
	}
	if execErr != nil {
		t.logger.Error("run completed", "job_name", handle.JobName, "run_id", handle.RunID, "conclusion", conclusion, "error", execErr)
		return
	}
	t.logger.Info("run completed", "job_name", handle.JobName, "run_id", handle.RunID, "conclusion", conclusion)
}

// CleanupAll force-completes every non-terminal run the engine still knows
// about, with a cancelled conclusion, up to maxCount runs. Individual update
// failures are logged and skipped so one bad record cannot block shutdown.
// It returns the number of runs it cancelled.
func (t *Tracker) CleanupAll(ctx context.Context, maxCount int) (int, error) {
	if t == nil {
		return 0, fmt.Errorf("saga: tracker is nil")
	}
	if maxCount <= 0 {
		maxCount = core.DefaultCleanupMaxCount
	}

	handles, err := t.engine.List(ctx, maxCount)
	if err != nil {
		return 0, fmt.Errorf("saga: list engine runs: %w", err)
	}

	seen := make(map[string]struct{}, len(handles))
	cancelled := 0
	for _, handle := range handles {
		seen[handle.RunID] = struct{}{}
		run, err := t.runs.GetByRunID(ctx, handle.RunID)
		if err != nil {
			t.logger.Warn("cleanup lookup failed",
				"run_id", handle.RunID,
				"text_code", core.GatewayErrorRunUpdateFailed,
				"error", err)
			continue
		}
		if t.cancelRun(ctx, run) {
			cancelled++
		}
	}

	// Sweep persisted stragglers the engine no longer tracks.
	if lister, ok := t.runs.(runLister); ok {
		for _, status := range []core.RunStatus{core.RunStatusQueued, core.RunStatusInProgress} {
			runs, err := lister.ListByStatus(ctx, status, maxCount)
			if err != nil {
				t.logger.Warn("cleanup listing failed", "status", status, "error", err)
				continue
			}
			for _, run := range runs {
				if _, done := seen[run.RunID]; done {
					continue
				}
				seen[run.RunID] = struct{}{}
				if t.cancelRun(ctx, run) {
					cancelled++
				}
			}
		}
	}

	if cancelled > 0 {
		t.logger.Info("cleanup swept open runs", "cancelled", cancelled)
	}
	return cancelled, nil
}

func (t *Tracker) cancelRun(ctx context.Context, run core.JobRun) bool {
	if run.Terminal() {
		return false
	}
	if err := run.Complete(core.RunConclusionCancelled, t.now()); err != nil {
		t.logger.Warn("cleanup completion rejected",
			"run_id", run.RunID,
			"text_code", core.GatewayErrorRunUpdateFailed,
			"error", err)
		return false
	}
	if _, err := t.runs.Update(ctx, run); err != nil {
		t.logger.Warn("cleanup write failed",
			"run_id", run.RunID,
			"text_code", core.GatewayErrorRunUpdateFailed,
			"error", err)
		return false
	}
	return true
}

var _ core.JobDispatcher = (*Tracker)(nil)
