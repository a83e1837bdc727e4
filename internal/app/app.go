package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PromptHarvester/internal/config"
	"PromptHarvester/internal/infrastructure/fetch"
	"PromptHarvester/internal/infrastructure/httpapi"
	"PromptHarvester/internal/infrastructure/llm"
	"PromptHarvester/internal/infrastructure/scheduler"
	"PromptHarvester/internal/infrastructure/sources"
	"PromptHarvester/internal/infrastructure/storage"
	"PromptHarvester/internal/logging"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/scrape"
	"PromptHarvester/internal/usecase"
	"PromptHarvester/internal/validate"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	cron   *scheduler.CronScheduler
	server *http.Server
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	prompts := storage.NewPromptRepository(db)
	institutions := storage.NewInstitutionRepository(db)
	sourceConfigs := storage.NewSourceConfigRepository(db)
	runs := storage.NewRunRepository(db)

	fetcher := fetch.NewSafeFetcher(nil, baseLogger.With("component", "fetcher"))

	// A nil client disables LLM extraction and rubric validation; the
	// strategies and validator degrade to heuristics and fallback lists.
	llmClient := llm.NewClient(cfg.LLM)

	registry := scrape.NewRegistry()
	registry.Register(sources.NewStaticStrategy(cfg.Static.Pages, fetcher,
		baseLogger.With("component", "source.static")))
	if llmClient != nil {
		registry.Register(sources.NewConfiguredStrategy(sourceConfigs, fetcher, llmClient,
			baseLogger.With("component", "source.configured")))
	}
	registry.Register(sources.NewAggregatorStrategy(cfg.Aggregator.BaseURL, cfg.Aggregator.Slugs,
		fetcher, baseLogger.With("component", "source.aggregator")))

	shared := sources.NewCommonAppStrategy(fetcher, extractorOrNil(llmClient),
		baseLogger.With("component", "source.commonapp"))

	validator := validate.New(rubricOrNil(llmClient), baseLogger.With("component", "validator"))

	acquisition := usecase.NewAcquisition(usecase.AcquisitionDeps{
		Registry:         registry,
		Prompts:          prompts,
		Institutions:     institutions,
		Validator:        validator,
		Logger:           baseLogger.With("component", "acquisition"),
		StrategyDelay:    cfg.Pipeline.StrategyDelay,
		InstitutionDelay: cfg.Pipeline.InstitutionDelay,
	})

	runner := usecase.NewRunner(usecase.RunnerDeps{
		Acquisition:     acquisition,
		Runs:            runs,
		SharedStrategy:  shared,
		ApplicationYear: cfg.Pipeline.ApplicationYear,
		Logger:          baseLogger.With("component", "runner"),
	})

	cron := scheduler.NewCronScheduler(cfg.Scheduler.PreSeasonCron, cfg.Scheduler.PostRDCron,
		cfg.Scheduler.Location(), runner, baseLogger.With("component", "scheduler"))

	api := httpapi.NewServer(httpapi.ServerDeps{
		Runner:          runner,
		Acquisition:     acquisition,
		Runs:            runs,
		Prompts:         prompts,
		Institutions:    institutions,
		SourceConfigs:   sourceConfigs,
		ApplicationYear: cfg.Pipeline.ApplicationYear,
		Logger:          baseLogger.With("component", "httpapi"),
	})

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		cron:   cron,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run starts the calendar scheduler and the admin API, blocking until the
// context is cancelled or the listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.cron.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("admin api listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.cron.Stop(shutdownCtx)
		_ = a.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// extractorOrNil keeps a nil *llm.Client from becoming a non-nil interface.
func extractorOrNil(client *llm.Client) ports.Extractor {
	if client == nil {
		return nil
	}
	return client
}

func rubricOrNil(client *llm.Client) validate.RubricClient {
	if client == nil {
		return nil
	}
	return client
}
