package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/usecase"
)

// sourceConfigPayload is the admin wire form of a SourceConfig. Either the
// institution id or its name must be supplied; names are upserted.
type sourceConfigPayload struct {
	InstitutionID    int64  `json:"institutionId"`
	InstitutionName  string `json:"institutionName"`
	SourceKind       string `json:"sourceKind"`
	URL              string `json:"url"`
	Slug             string `json:"slug"`
	ExtractionGroup  string `json:"extractionGroup"`
	RemovalSelectors string `json:"removalSelectors"`
	Priority         int    `json:"priority"`
	ExtractionHints  string `json:"extractionHints"`
}

func (s *Server) listSourceConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.deps.SourceConfigs.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	if configs == nil {
		configs = []domain.SourceConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": configs})
}

func (s *Server) createSourceConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.decodeSourceConfig(w, r)
	if !ok {
		return
	}

	id, err := s.deps.SourceConfigs.Create(r.Context(), cfg)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	cfg.ID = id
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) updateSourceConfig(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.badRequest(w, "id must be an integer")
		return
	}

	cfg, ok := s.decodeSourceConfig(w, r)
	if !ok {
		return
	}
	cfg.ID = id

	switch err := s.deps.SourceConfigs.Update(r.Context(), cfg); {
	case errors.Is(err, sql.ErrNoRows):
		s.fail(w, http.StatusNotFound, errors.New("source config not found"))
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, cfg)
	}
}

func (s *Server) deleteSourceConfig(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.badRequest(w, "id must be an integer")
		return
	}

	switch err := s.deps.SourceConfigs.Delete(r.Context(), id); {
	case errors.Is(err, sql.ErrNoRows):
		s.fail(w, http.StatusNotFound, errors.New("source config not found"))
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeSourceConfig validates the structural requirements of the payload;
// a missing URL or institution is the one place the pipeline surfaces a
// user-visible error.
func (s *Server) decodeSourceConfig(w http.ResponseWriter, r *http.Request) (domain.SourceConfig, bool) {
	var payload sourceConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid JSON body")
		return domain.SourceConfig{}, false
	}

	if strings.TrimSpace(payload.URL) == "" {
		s.badRequest(w, "url is required")
		return domain.SourceConfig{}, false
	}

	institutionID := payload.InstitutionID
	if institutionID == 0 {
		if strings.TrimSpace(payload.InstitutionName) == "" {
			s.badRequest(w, "institutionId or institutionName is required")
			return domain.SourceConfig{}, false
		}
		inst, err := s.deps.Institutions.UpsertByName(r.Context(), strings.TrimSpace(payload.InstitutionName))
		if err != nil {
			s.fail(w, http.StatusInternalServerError, err)
			return domain.SourceConfig{}, false
		}
		institutionID = inst.ID
	}

	kind := domain.SourceKind(payload.SourceKind)
	if kind == "" {
		kind = domain.SourceConfigured
	}

	return domain.SourceConfig{
		InstitutionID:    institutionID,
		SourceKind:       kind,
		URL:              strings.TrimSpace(payload.URL),
		Slug:             payload.Slug,
		ExtractionGroup:  payload.ExtractionGroup,
		RemovalSelectors: payload.RemovalSelectors,
		Priority:         payload.Priority,
		ExtractionHints:  payload.ExtractionHints,
	}, true
}

func (s *Server) testScrape(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InstitutionName string   `json:"institutionName"`
		ApplicationYear int      `json:"applicationYear"`
		Strategies      []string `json:"strategies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.InstitutionName) == "" {
		s.badRequest(w, "institutionName is required")
		return
	}
	year := payload.ApplicationYear
	if year == 0 {
		year = s.deps.ApplicationYear
	}

	preview, err := s.deps.Acquisition.Preview(r.Context(), payload.InstitutionName, year, payload.Strategies)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) confirmSave(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InstitutionName string                     `json:"institutionName"`
		ApplicationYear int                        `json:"applicationYear"`
		Selected        []usecase.ConfirmCandidate `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.InstitutionName) == "" {
		s.badRequest(w, "institutionName is required")
		return
	}
	if len(payload.Selected) == 0 {
		s.badRequest(w, "selected must not be empty")
		return
	}
	year := payload.ApplicationYear
	if year == 0 {
		year = s.deps.ApplicationYear
	}

	saved, err := s.deps.Acquisition.ConfirmSave(r.Context(), payload.InstitutionName, year, payload.Selected)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": saved})
}
