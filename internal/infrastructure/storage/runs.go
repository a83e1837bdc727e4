package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
)

// RunRepository persists pipeline-run audit records. The per-institution
// detail array is stored as a JSON column.
type RunRepository struct {
	db *sql.DB
}

var _ ports.RunRepository = (*RunRepository)(nil)

// NewRunRepository wires the shared sql.DB.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts the freshly triggered run, normally in RUNNING state.
func (r *RunRepository) Create(ctx context.Context, run domain.PipelineRun) error {
	detail, err := marshalDetail(run.Detail)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert("pipeline_runs").
		Columns("id", "trigger_kind", "operator_id", "application_year", "status",
			"total_institutions", "success_count", "failed_count",
			"new_prompts_count", "changed_prompts_count", "detail", "started_at").
		Values(run.ID, run.Trigger, run.OperatorID, run.ApplicationYear, run.Status,
			run.TotalInstitutions, run.SuccessCount, run.FailedCount,
			run.NewPromptsCount, run.ChangedPromptsCount, detail, run.StartedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish writes the terminal state and final counts exactly once: a run
// already out of RUNNING is left untouched.
func (r *RunRepository) Finish(ctx context.Context, run domain.PipelineRun) error {
	detail, err := marshalDetail(run.Detail)
	if err != nil {
		return err
	}

	query, args, err := sq.Update("pipeline_runs").
		Set("status", run.Status).
		Set("total_institutions", run.TotalInstitutions).
		Set("success_count", run.SuccessCount).
		Set("failed_count", run.FailedCount).
		Set("new_prompts_count", run.NewPromptsCount).
		Set("changed_prompts_count", run.ChangedPromptsCount).
		Set("detail", detail).
		Set("completed_at", run.CompletedAt).
		Where(sq.Eq{"id": run.ID, "status": domain.RunRunning}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run finish: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s is not in %s state", run.ID, domain.RunRunning)
	}
	return nil
}

// Get loads one run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (domain.PipelineRun, error) {
	query, args, err := runSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("build run get: %w", err)
	}

	runs, err := r.queryRuns(ctx, query, args...)
	if err != nil {
		return domain.PipelineRun{}, err
	}
	if len(runs) == 0 {
		return domain.PipelineRun{}, sql.ErrNoRows
	}
	return runs[0], nil
}

// ListRecent returns runs newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := runSelect().
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run list: %w", err)
	}
	return r.queryRuns(ctx, query, args...)
}

func runSelect() sq.SelectBuilder {
	return sq.Select("id", "trigger_kind", "operator_id", "application_year", "status",
		"total_institutions", "success_count", "failed_count",
		"new_prompts_count", "changed_prompts_count", "detail",
		"started_at", "completed_at").
		From("pipeline_runs")
}

func (r *RunRepository) queryRuns(ctx context.Context, query string, args ...any) ([]domain.PipelineRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		var (
			run         domain.PipelineRun
			detail      string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &run.OperatorID, &run.ApplicationYear,
			&run.Status, &run.TotalInstitutions, &run.SuccessCount, &run.FailedCount,
			&run.NewPromptsCount, &run.ChangedPromptsCount, &detail,
			&run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		if detail != "" {
			if err := json.Unmarshal([]byte(detail), &run.Detail); err != nil {
				return nil, fmt.Errorf("decode run detail: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

func marshalDetail(detail []domain.InstitutionOutcome) (string, error) {
	if detail == nil {
		detail = []domain.InstitutionOutcome{}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return "", fmt.Errorf("encode run detail: %w", err)
	}
	return string(raw), nil
}
