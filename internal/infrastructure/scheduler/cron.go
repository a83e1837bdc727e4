package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
)

// RunTriggerer is the entry point both calendar triggers funnel into; the
// manual HTTP trigger shares it.
type RunTriggerer interface {
	TriggerRun(ctx context.Context, trigger domain.RunTrigger, operatorID string) (string, error)
}

// CronScheduler fires the pre-season and post-deadline pipeline runs.
type CronScheduler struct {
	preSeasonSpec string
	postRDSpec    string
	location      *time.Location
	runner        RunTriggerer
	logger        *slog.Logger
	cron          *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler from the two cron expressions.
func NewCronScheduler(preSeasonSpec, postRDSpec string, loc *time.Location, runner RunTriggerer, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{
		preSeasonSpec: preSeasonSpec,
		postRDSpec:    postRDSpec,
		location:      loc,
		runner:        runner,
		logger:        log,
	}
}

// Start registers both calendar entries and begins the cron loop.
func (c *CronScheduler) Start(ctx context.Context) error {
	if c.runner == nil {
		return nil
	}
	if c.cron != nil {
		return nil
	}

	c.cron = cron.New(cron.WithLocation(c.location))

	entries := []struct {
		spec    string
		trigger domain.RunTrigger
	}{
		{c.preSeasonSpec, domain.TriggerScheduledPreSeason},
		{c.postRDSpec, domain.TriggerScheduledPostRD},
	}
	for _, entry := range entries {
		if entry.spec == "" {
			continue
		}
		trigger := entry.trigger
		if _, err := c.cron.AddFunc(entry.spec, func() { c.fire(ctx, trigger) }); err != nil {
			return fmt.Errorf("register %s schedule: %w", trigger, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the cron loop; an in-flight batch keeps running detached.
func (c *CronScheduler) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}
	stopCtx := c.cron.Stop()
	c.cron = nil
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

func (c *CronScheduler) fire(ctx context.Context, trigger domain.RunTrigger) {
	runID, err := c.runner.TriggerRun(ctx, trigger, "")
	if err != nil {
		if c.logger != nil {
			c.logger.Error("scheduled trigger failed", "trigger", trigger, "error", err)
		}
		return
	}
	if c.logger != nil {
		c.logger.Info("scheduled pipeline run triggered", "trigger", trigger, "run", runID)
	}
}
