// Package httpapi exposes the admin surface: run triggers and inspection,
// source-config management, dashboard queries, and preview/confirm curation.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/infrastructure/scheduler"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/usecase"
)

// ServerDeps wires the handlers' collaborators.
type ServerDeps struct {
	Runner          scheduler.RunTriggerer
	Acquisition     *usecase.Acquisition
	Runs            ports.RunRepository
	Prompts         ports.PromptRepository
	Institutions    ports.InstitutionRepository
	SourceConfigs   ports.SourceConfigRepository
	ApplicationYear int
	Logger          *slog.Logger
}

// Server is the chi-backed admin API.
type Server struct {
	deps ServerDeps
}

// NewServer builds the admin API server.
func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

// Router assembles all admin routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/pipeline/runs", s.triggerRun)
		r.Get("/pipeline/runs", s.listRuns)
		r.Get("/pipeline/runs/{id}", s.getRun)

		r.Get("/sources", s.listSourceConfigs)
		r.Post("/sources", s.createSourceConfig)
		r.Put("/sources/{id}", s.updateSourceConfig)
		r.Delete("/sources/{id}", s.deleteSourceConfig)

		r.Get("/dashboard/coverage", s.coverage)
		r.Get("/dashboard/freshness", s.freshness)
		r.Get("/dashboard/changes", s.changes)

		r.Post("/scrape/test", s.testScrape)
		r.Post("/scrape/confirm", s.confirmSave)
	})
	return r
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OperatorID string `json:"operatorId"`
	}
	// Body is optional for a manual trigger.
	_ = json.NewDecoder(r.Body).Decode(&payload)

	runID, err := s.deps.Runner.TriggerRun(r.Context(), domain.TriggerManual, payload.OperatorID)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  runID,
		"status": domain.RunRunning,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.badRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := s.deps.Runs.ListRecent(r.Context(), limit)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runViews(runs)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		s.fail(w, http.StatusNotFound, errors.New("run not found"))
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runView(run))
}

func (s *Server) coverage(w http.ResponseWriter, r *http.Request) {
	year := s.yearParam(r)
	verified, total, err := s.deps.Prompts.Coverage(r.Context(), year)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	percent := 0.0
	if total > 0 {
		percent = float64(verified) / float64(total) * 100
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applicationYear":      year,
		"institutionsVerified": verified,
		"institutionsTotal":    total,
		"coveragePercent":      percent,
	})
}

func (s *Server) freshness(w http.ResponseWriter, r *http.Request) {
	configs, err := s.deps.SourceConfigs.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	type entry struct {
		ID            int64             `json:"id"`
		InstitutionID int64             `json:"institutionId"`
		URL           string            `json:"url"`
		LastScrapedAt *string           `json:"lastScrapedAt"`
		LastStatus    domain.RunOutcome `json:"lastStatus"`
		LastError     string            `json:"lastError,omitempty"`
	}
	out := make([]entry, 0, len(configs))
	for _, cfg := range configs {
		e := entry{
			ID:            cfg.ID,
			InstitutionID: cfg.InstitutionID,
			URL:           cfg.URL,
			LastStatus:    cfg.LastRunStatus,
			LastError:     cfg.LastRunError,
		}
		if cfg.LastRunAt != nil {
			formatted := cfg.LastRunAt.UTC().Format("2006-01-02T15:04:05Z07:00")
			e.LastScrapedAt = &formatted
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) changes(w http.ResponseWriter, r *http.Request) {
	year := s.yearParam(r)
	changes, err := s.deps.Prompts.YearOverYearChanges(r.Context(), year)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	if changes == nil {
		changes = []domain.PromptChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applicationYear": year,
		"changes":         changes,
	})
}

func (s *Server) yearParam(r *http.Request) int {
	if raw := r.URL.Query().Get("year"); raw != "" {
		if year, err := strconv.Atoi(raw); err == nil {
			return year
		}
	}
	return s.deps.ApplicationYear
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError && s.deps.Logger != nil {
		s.deps.Logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// runView flattens a run for JSON without exposing internal zero values.
type runViewT struct {
	ID                  string                      `json:"id"`
	Trigger             domain.RunTrigger           `json:"trigger"`
	OperatorID          string                      `json:"operatorId,omitempty"`
	ApplicationYear     int                         `json:"applicationYear"`
	Status              domain.RunStatus            `json:"status"`
	TotalInstitutions   int                         `json:"totalInstitutions"`
	SuccessCount        int                         `json:"successCount"`
	FailedCount         int                         `json:"failedCount"`
	NewPromptsCount     int                         `json:"newPromptsCount"`
	ChangedPromptsCount int                         `json:"changedPromptsCount"`
	Detail              []domain.InstitutionOutcome `json:"perInstitutionDetail"`
	StartedAt           string                      `json:"startedAt"`
	CompletedAt         *string                     `json:"completedAt"`
}

func runView(run domain.PipelineRun) runViewT {
	view := runViewT{
		ID:                  run.ID,
		Trigger:             run.Trigger,
		OperatorID:          run.OperatorID,
		ApplicationYear:     run.ApplicationYear,
		Status:              run.Status,
		TotalInstitutions:   run.TotalInstitutions,
		SuccessCount:        run.SuccessCount,
		FailedCount:         run.FailedCount,
		NewPromptsCount:     run.NewPromptsCount,
		ChangedPromptsCount: run.ChangedPromptsCount,
		Detail:              run.Detail,
		StartedAt:           run.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if view.Detail == nil {
		view.Detail = []domain.InstitutionOutcome{}
	}
	if run.CompletedAt != nil {
		formatted := run.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		view.CompletedAt = &formatted
	}
	return view
}

func runViews(runs []domain.PipelineRun) []runViewT {
	out := make([]runViewT, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView(run))
	}
	return out
}
