package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tokengate/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RunStore owns the durable job_runs table.
type RunStore struct {
	db   *bun.DB
	repo repository.Repository[*runRecord]
}

func (s *RunStore) Create(ctx context.Context, run core.JobRun) (core.JobRun, error) {
	if s == nil || s.repo == nil {
		return core.JobRun{}, fmt.Errorf("sqlstore: run store is not configured")
	}
	if strings.TrimSpace(run.RunID) == "" {
		return core.JobRun{}, fmt.Errorf("sqlstore: run id is required")
	}
	if strings.TrimSpace(run.JobName) == "" {
		return core.JobRun{}, fmt.Errorf("sqlstore: job name is required")
	}
	now := time.Now().UTC()
	record := &runRecord{
		ID:          uuid.NewString(),
		RunID:       strings.TrimSpace(run.RunID),
		JobName:     strings.TrimSpace(run.JobName),
		Status:      string(run.Status),
		Conclusion:  string(run.Conclusion),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	inserted, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.JobRun{}, err
	}
	return inserted.toDomain(), nil
}

func (s *RunStore) GetByRunID(ctx context.Context, runID string) (core.JobRun, error) {
	if s == nil || s.repo == nil {
		return core.JobRun{}, fmt.Errorf("sqlstore: run store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("run_id", "=", strings.TrimSpace(runID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.JobRun{}, err
	}
	if len(records) == 0 {
		return core.JobRun{}, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return records[0].toDomain(), nil
}

func (s *RunStore) Update(ctx context.Context, run core.JobRun) (core.JobRun, error) {
	if s == nil || s.db == nil {
		return core.JobRun{}, fmt.Errorf("sqlstore: run store is not configured")
	}
	runID := strings.TrimSpace(run.RunID)
	if runID == "" {
		return core.JobRun{}, fmt.Errorf("sqlstore: run id is required")
	}
	now := time.Now().UTC()

	result, err := s.db.NewUpdate().
		Model((*runRecord)(nil)).
		Set("status = ?", string(run.Status)).
		Set("conclusion = ?", string(run.Conclusion)).
		Set("completed_at = ?", run.CompletedAt).
		Set("updated_at = ?", now).
		Where("run_id = ?", runID).
		Exec(ctx)
	if err != nil {
		return core.JobRun{}, err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return core.JobRun{}, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	run.UpdatedAt = now
	return run, nil
}

// ListByStatus returns up to max runs in the given status, oldest first.
func (s *RunStore) ListByStatus(ctx context.Context, status core.RunStatus, max int) ([]core.JobRun, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: run store is not configured")
	}
	if max <= 0 {
		max = core.DefaultCleanupMaxCount
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(status)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(max, 0),
	)
	if err != nil {
		return nil, err
	}
	runs := make([]core.JobRun, 0, len(records))
	for _, record := range records {
		runs = append(runs, record.toDomain())
	}
	return runs, nil
}
