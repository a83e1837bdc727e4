package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/scrape"
)

// commonAppInstitution is the pseudo-institution the shared strategy's
// prompts are filed under; it is harvested once per batch, not per school.
const commonAppInstitution = domain.CommonAppInstitution

// RunnerDeps wires the run orchestrator.
type RunnerDeps struct {
	Acquisition *Acquisition
	Runs        ports.RunRepository
	// SharedStrategy is the cross-institution source executed once per
	// batch, ahead of the per-school flow. Optional.
	SharedStrategy  scrape.Strategy
	ApplicationYear int
	Logger          *slog.Logger
}

// Runner triggers full-catalog pipeline runs and keeps their durable audit
// records. The trigger call returns immediately; the batch executes in a
// detached goroutine whose only synchronization point is the run row.
type Runner struct {
	acquisition *Acquisition
	runs        ports.RunRepository
	shared      scrape.Strategy
	year        int
	logger      *slog.Logger
}

// NewRunner constructs the run orchestrator.
func NewRunner(deps RunnerDeps) *Runner {
	return &Runner{
		acquisition: deps.Acquisition,
		runs:        deps.Runs,
		shared:      deps.SharedStrategy,
		year:        deps.ApplicationYear,
		logger:      deps.Logger,
	}
}

// TriggerRun creates the RUNNING run record before any network I/O and
// launches the batch asynchronously, returning the run id at once. Readers
// poll the run record for completion.
func (r *Runner) TriggerRun(ctx context.Context, trigger domain.RunTrigger, operatorID string) (string, error) {
	run := domain.PipelineRun{
		ID:              uuid.NewString(),
		Trigger:         trigger,
		OperatorID:      operatorID,
		ApplicationYear: r.year,
		Status:          domain.RunRunning,
		StartedAt:       time.Now().UTC(),
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create run record: %w", err)
	}

	go r.executeBatch(run)

	return run.ID, nil
}

// executeBatch owns the detached batch. Individual institution failures are
// recorded in the detail array; only a genuinely unexpected error or panic
// marks the whole run FAILED.
func (r *Runner) executeBatch(run domain.PipelineRun) {
	ctx := context.Background()

	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("pipeline run panicked", "run", run.ID, "panic", rec)
			}
			r.finish(ctx, run, domain.RunFailed)
		}
	}()

	if r.shared != nil {
		outcome, changed := r.acquisition.HarvestWith(ctx, commonAppInstitution, run.ApplicationYear, []scrape.Strategy{r.shared})
		run.Detail = append(run.Detail, outcome)
		run.NewPromptsCount += outcome.NewPrompts
		run.ChangedPromptsCount += changed
		if outcome.Success {
			run.SuccessCount++
		} else {
			run.FailedCount++
		}
	}

	outcomes, changed := r.acquisition.HarvestCatalog(ctx, run.ApplicationYear)
	for _, outcome := range outcomes {
		run.Detail = append(run.Detail, outcome)
		run.NewPromptsCount += outcome.NewPrompts
		if outcome.Success {
			run.SuccessCount++
		} else {
			run.FailedCount++
		}
	}
	run.ChangedPromptsCount += changed
	run.TotalInstitutions = len(run.Detail)

	r.finish(ctx, run, domain.RunCompleted)
}

func (r *Runner) finish(ctx context.Context, run domain.PipelineRun, status domain.RunStatus) {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	if err := r.runs.Finish(ctx, run); err != nil && r.logger != nil {
		r.logger.Error("finish run record", "run", run.ID, "error", err)
	}
	if r.logger != nil {
		r.logger.Info("pipeline run finished", "run", run.ID, "status", status,
			"institutions", run.TotalInstitutions, "success", run.SuccessCount,
			"failed", run.FailedCount, "new_prompts", run.NewPromptsCount)
	}
}
