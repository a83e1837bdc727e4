package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/infrastructure/storage"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/scrape"
	"PromptHarvester/internal/usecase"
)

type stubTriggerer struct {
	id           string
	lastOperator string
}

func (s *stubTriggerer) TriggerRun(ctx context.Context, trigger domain.RunTrigger, operatorID string) (string, error) {
	s.lastOperator = operatorID
	return s.id, nil
}

type previewStrategy struct{}

func (previewStrategy) Name() string            { return "static" }
func (previewStrategy) Kind() domain.SourceKind { return domain.SourceStatic }

func (previewStrategy) Institutions(ctx context.Context) ([]string, error) { return nil, nil }

func (previewStrategy) Scrape(ctx context.Context, institutionName string, year int) (*domain.SourceResult, error) {
	return &domain.SourceResult{
		InstitutionName: institutionName,
		ApplicationYear: year,
		Candidates: []domain.PromptCandidate{{
			PromptText:      "Why do you want to attend " + institutionName + "?",
			Category:        domain.CategoryWhySchool,
			IsRequired:      true,
			ConfidenceScore: 0.7,
		}},
		SourceKind: domain.SourceStatic,
		SourceURL:  "https://example.edu/essays",
	}, nil
}

type approveValidator struct{}

func (approveValidator) Validate(ctx context.Context, candidate domain.PromptCandidate, institutionName string) (domain.Verdict, error) {
	return domain.Verdict{IsValid: true, Confidence: candidate.ConfidenceScore}, nil
}

type testServer struct {
	handler      http.Handler
	db           *sql.DB
	runs         ports.RunRepository
	prompts      ports.PromptRepository
	institutions ports.InstitutionRepository
	configs      ports.SourceConfigRepository
	triggerer    *stubTriggerer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	prompts := storage.NewPromptRepository(db)
	institutions := storage.NewInstitutionRepository(db)
	configs := storage.NewSourceConfigRepository(db)
	runs := storage.NewRunRepository(db)

	registry := scrape.NewRegistry()
	registry.Register(previewStrategy{})
	acquisition := usecase.NewAcquisition(usecase.AcquisitionDeps{
		Registry:     registry,
		Prompts:      prompts,
		Institutions: institutions,
		Validator:    approveValidator{},
		Sleep:        func(ctx context.Context, d time.Duration) {},
	})

	triggerer := &stubTriggerer{id: "run-abc"}
	server := NewServer(ServerDeps{
		Runner:          triggerer,
		Acquisition:     acquisition,
		Runs:            runs,
		Prompts:         prompts,
		Institutions:    institutions,
		SourceConfigs:   configs,
		ApplicationYear: 2026,
	})

	return &testServer{
		handler:      server.Router(),
		db:           db,
		runs:         runs,
		prompts:      prompts,
		institutions: institutions,
		configs:      configs,
		triggerer:    triggerer,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTriggerRunAccepted(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/pipeline/runs", map[string]string{"operatorId": "op-7"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		RunID  string           `json:"runId"`
		Status domain.RunStatus `json:"status"`
	}
	decodeInto(t, rec, &resp)
	if resp.RunID != "run-abc" || resp.Status != domain.RunRunning {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if ts.triggerer.lastOperator != "op-7" {
		t.Fatalf("operator not forwarded: %q", ts.triggerer.lastOperator)
	}
}

func TestGetRun(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	if err := ts.runs.Create(ctx, domain.PipelineRun{
		ID:              "run-1",
		Trigger:         domain.TriggerManual,
		ApplicationYear: 2026,
		Status:          domain.RunRunning,
		StartedAt:       time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/pipeline/runs/run-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var view runViewT
	decodeInto(t, rec, &view)
	if view.ID != "run-1" || view.Status != domain.RunRunning {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Detail == nil {
		t.Fatal("detail must serialize as an empty array, not null")
	}

	if rec := ts.do(t, http.MethodGet, "/api/pipeline/runs/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListRunsLimitValidation(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/api/pipeline/runs?limit=0", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/pipeline/runs", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSourceConfigCRUD(t *testing.T) {
	ts := newTestServer(t)

	// url is required.
	rec := ts.do(t, http.MethodPost, "/api/sources", map[string]any{
		"institutionName": "Example University",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d: %s", rec.Code, rec.Body)
	}

	// Creating by institution name upserts the institution.
	rec = ts.do(t, http.MethodPost, "/api/sources", map[string]any{
		"institutionName": "Example University",
		"url":             "https://example.edu/apply/essays",
		"extractionGroup": "main",
		"priority":        5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var created domain.SourceConfig
	decodeInto(t, rec, &created)
	if created.ID == 0 || created.InstitutionID == 0 {
		t.Fatalf("ids not assigned: %+v", created)
	}
	if created.SourceKind != domain.SourceConfigured {
		t.Fatalf("expected default kind, got %s", created.SourceKind)
	}

	rec = ts.do(t, http.MethodGet, "/api/sources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Sources []domain.SourceConfig `json:"sources"`
	}
	decodeInto(t, rec, &listed)
	if len(listed.Sources) != 1 {
		t.Fatalf("expected 1 source, got %+v", listed)
	}

	rec = ts.do(t, http.MethodPut, "/api/sources/99999", map[string]any{
		"institutionId": created.InstitutionID,
		"url":           "https://example.edu/other",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, "/api/sources/"+itoa(created.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodDelete, "/api/sources/"+itoa(created.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on double delete, got %d", rec.Code)
	}
}

func TestDashboardCoverage(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	inst, err := ts.institutions.UpsertByName(ctx, "Example University")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := ts.prompts.Create(ctx, domain.PersistedPrompt{
		InstitutionID:   inst.ID,
		ApplicationYear: 2026,
		Category:        domain.CategoryWhySchool,
		PromptText:      "Why Example University?",
		ReviewStatus:    domain.ReviewVerified,
		Provenance:      []domain.ProvenanceEntry{{SourceKind: domain.SourceStatic, SourceURL: "https://x"}},
	}); err != nil {
		t.Fatalf("seed prompt: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/dashboard/coverage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		ApplicationYear      int     `json:"applicationYear"`
		InstitutionsVerified int     `json:"institutionsVerified"`
		InstitutionsTotal    int     `json:"institutionsTotal"`
		CoveragePercent      float64 `json:"coveragePercent"`
	}
	decodeInto(t, rec, &resp)
	if resp.ApplicationYear != 2026 || resp.InstitutionsVerified != 1 || resp.InstitutionsTotal != 1 {
		t.Fatalf("unexpected coverage: %+v", resp)
	}
	if resp.CoveragePercent != 100 {
		t.Fatalf("expected 100%%, got %v", resp.CoveragePercent)
	}
}

func TestDashboardChangesEmpty(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/dashboard/changes?year=2026", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		ApplicationYear int                   `json:"applicationYear"`
		Changes         []domain.PromptChange `json:"changes"`
	}
	decodeInto(t, rec, &resp)
	if resp.Changes == nil {
		t.Fatal("changes must serialize as an empty array, not null")
	}
}

func TestScrapeTestAndConfirm(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/scrape/test", map[string]any{
		"institutionName": "Example University",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var preview usecase.PreviewResult
	decodeInto(t, rec, &preview)
	if len(preview.Candidates) != 1 {
		t.Fatalf("expected 1 preview candidate, got %+v", preview)
	}

	rec = ts.do(t, http.MethodPost, "/api/scrape/confirm", map[string]any{
		"institutionName": "Example University",
		"selected": []usecase.ConfirmCandidate{{
			Candidate:  preview.Candidates[0].Candidate,
			SourceKind: domain.SourceStatic,
			SourceURL:  "https://example.edu/essays",
		}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var confirmed struct {
		Saved int `json:"saved"`
	}
	decodeInto(t, rec, &confirmed)
	if confirmed.Saved != 1 {
		t.Fatalf("expected 1 saved, got %d", confirmed.Saved)
	}

	// Missing institution name is rejected up front.
	rec = ts.do(t, http.MethodPost, "/api/scrape/confirm", map[string]any{
		"selected": []usecase.ConfirmCandidate{{}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
