package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"PromptHarvester/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPromptNaturalKeyDedup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	institutions := NewInstitutionRepository(db)
	prompts := NewPromptRepository(db)

	inst, err := institutions.UpsertByName(ctx, "Example University")
	if err != nil {
		t.Fatalf("upsert institution: %v", err)
	}

	prompt := domain.PersistedPrompt{
		InstitutionID:   inst.ID,
		ApplicationYear: 2026,
		Category:        domain.CategoryWhySchool,
		PromptText:      "Why do you want to attend Example University?",
		IsRequired:      true,
		ReviewStatus:    domain.ReviewVerified,
		Provenance: []domain.ProvenanceEntry{
			{SourceKind: domain.SourceStatic, SourceURL: "https://example.edu/essays", Confidence: 0.7},
			{SourceKind: domain.SourceConfigured, SourceURL: "https://example.edu/apply", Confidence: 0.9},
		},
	}

	if _, err := prompts.Create(ctx, prompt); err != nil {
		t.Fatalf("create prompt: %v", err)
	}

	exists, err := prompts.ExistsByNaturalKey(ctx, inst.ID, 2026, prompt.PromptText)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected natural key to exist")
	}

	// Exact duplicate must violate the unique constraint.
	if _, err := prompts.Create(ctx, prompt); err == nil {
		t.Fatal("expected duplicate natural key insert to fail")
	}

	stored, err := prompts.ListByInstitutionYear(ctx, inst.ID, 2026)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(stored))
	}
	if len(stored[0].Provenance) != 2 {
		t.Fatalf("expected 2 provenance entries, got %d", len(stored[0].Provenance))
	}
}

func TestInstitutionUpsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	institutions := NewInstitutionRepository(db)

	first, err := institutions.UpsertByName(ctx, "Boston College")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := institutions.UpsertByName(ctx, "Boston College")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected stable id, got %d then %d", first.ID, second.ID)
	}
}

func TestCoverage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	institutions := NewInstitutionRepository(db)
	prompts := NewPromptRepository(db)

	verified, _ := institutions.UpsertByName(ctx, "Verified U")
	pending, _ := institutions.UpsertByName(ctx, "Pending U")
	if _, err := institutions.UpsertByName(ctx, "Empty U"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	seed := func(instID int64, status domain.ReviewStatus, text string) {
		t.Helper()
		_, err := prompts.Create(ctx, domain.PersistedPrompt{
			InstitutionID:   instID,
			ApplicationYear: 2026,
			Category:        domain.CategorySupplemental,
			PromptText:      text,
			ReviewStatus:    status,
			Provenance:      []domain.ProvenanceEntry{{SourceKind: domain.SourceStatic, SourceURL: "https://x"}},
		})
		if err != nil {
			t.Fatalf("seed prompt: %v", err)
		}
	}
	seed(verified.ID, domain.ReviewVerified, "Describe a community you belong to.")
	seed(pending.ID, domain.ReviewPending, "Tell us about a challenge.")

	gotVerified, total, err := prompts.Coverage(ctx, 2026)
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	if gotVerified != 1 || total != 3 {
		t.Fatalf("expected 1/3 coverage, got %d/%d", gotVerified, total)
	}

	// The shared pseudo-institution created by a batch run must not enter
	// either side of the ratio.
	shared, _ := institutions.UpsertByName(ctx, domain.CommonAppInstitution)
	seed(shared.ID, domain.ReviewVerified, "Share an essay on any topic of your choice.")

	gotVerified, total, err = prompts.Coverage(ctx, 2026)
	if err != nil {
		t.Fatalf("coverage after shared pass: %v", err)
	}
	if gotVerified != 1 || total != 3 {
		t.Fatalf("pseudo-institution leaked into coverage: %d/%d", gotVerified, total)
	}
}

func TestYearOverYearChanges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	institutions := NewInstitutionRepository(db)
	prompts := NewPromptRepository(db)

	inst, _ := institutions.UpsertByName(ctx, "Example University")

	seed := func(year int, text string) {
		t.Helper()
		_, err := prompts.Create(ctx, domain.PersistedPrompt{
			InstitutionID:   inst.ID,
			ApplicationYear: year,
			Category:        domain.CategorySupplemental,
			PromptText:      text,
			ReviewStatus:    domain.ReviewPending,
			Provenance:      []domain.ProvenanceEntry{{SourceKind: domain.SourceStatic, SourceURL: "https://x"}},
		})
		if err != nil {
			t.Fatalf("seed prompt: %v", err)
		}
	}
	seed(2025, "Describe an obstacle you overcame.")
	seed(2025, "Why Example University?")
	seed(2026, "Why Example University?")
	seed(2026, "Tell us about a community you belong to.")

	changes, err := prompts.YearOverYearChanges(ctx, 2026)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}

	var added, removed int
	for _, c := range changes {
		switch c.Change {
		case domain.PromptAdded:
			added++
		case domain.PromptRemoved:
			removed++
		}
	}
	if added != 1 || removed != 1 {
		t.Fatalf("expected 1 added and 1 removed, got %d/%d: %+v", added, removed, changes)
	}
}

func TestSourceConfigLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	institutions := NewInstitutionRepository(db)
	configs := NewSourceConfigRepository(db)

	inst, _ := institutions.UpsertByName(ctx, "Example University")

	id, err := configs.Create(ctx, domain.SourceConfig{
		InstitutionID:   inst.ID,
		SourceKind:      domain.SourceConfigured,
		URL:             "https://example.edu/apply/essays",
		ExtractionGroup: "main, article",
		Priority:        5,
		ExtractionHints: "supplemental essay prompts",
	})
	if err != nil {
		t.Fatalf("create config: %v", err)
	}

	lowPriority, err := configs.Create(ctx, domain.SourceConfig{
		InstitutionID: inst.ID,
		SourceKind:    domain.SourceConfigured,
		URL:           "https://example.edu/faq",
		Priority:      1,
	})
	if err != nil {
		t.Fatalf("create second config: %v", err)
	}

	byName, err := configs.ListByInstitutionName(ctx, "Example University")
	if err != nil {
		t.Fatalf("list by name: %v", err)
	}
	if len(byName) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(byName))
	}
	if byName[0].ID != id {
		t.Fatalf("expected priority ordering, got %d first", byName[0].ID)
	}

	names, err := configs.InstitutionNames(ctx)
	if err != nil {
		t.Fatalf("institution names: %v", err)
	}
	if len(names) != 1 || names[0] != "Example University" {
		t.Fatalf("unexpected names: %v", names)
	}

	at := time.Date(2026, time.August, 1, 6, 0, 0, 0, time.UTC)
	if err := configs.MarkRun(ctx, id, at, domain.RunOutcomeSuccess, ""); err != nil {
		t.Fatalf("mark run: %v", err)
	}
	byName, _ = configs.ListByInstitutionName(ctx, "Example University")
	if byName[0].LastRunAt == nil || byName[0].LastRunStatus != domain.RunOutcomeSuccess {
		t.Fatalf("mark run not reflected: %+v", byName[0])
	}

	if err := configs.Delete(ctx, lowPriority); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := configs.Delete(ctx, lowPriority); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows on double delete, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	runs := NewRunRepository(db)

	run := domain.PipelineRun{
		ID:              "run-1",
		Trigger:         domain.TriggerManual,
		ApplicationYear: 2026,
		Status:          domain.RunRunning,
		StartedAt:       time.Now().UTC(),
	}
	if err := runs.Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	loaded, err := runs.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if loaded.Status != domain.RunRunning {
		t.Fatalf("expected RUNNING, got %s", loaded.Status)
	}

	now := time.Now().UTC()
	run.Status = domain.RunCompleted
	run.TotalInstitutions = 2
	run.SuccessCount = 1
	run.FailedCount = 1
	run.NewPromptsCount = 1
	run.CompletedAt = &now
	run.Detail = []domain.InstitutionOutcome{
		{InstitutionName: "A", Success: false, EssaysFound: 0, Error: "no configured source yielded prompts"},
		{InstitutionName: "B", Success: true, EssaysFound: 1, NewPrompts: 1},
	}
	if err := runs.Finish(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	// COMPLETED is terminal: a second finish must not resurrect the run.
	run.Status = domain.RunFailed
	if err := runs.Finish(ctx, run); err == nil {
		t.Fatal("expected terminal run finish to fail")
	}

	loaded, err = runs.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get finished run: %v", err)
	}
	if loaded.Status != domain.RunCompleted {
		t.Fatalf("expected COMPLETED, got %s", loaded.Status)
	}
	if len(loaded.Detail) != 2 || loaded.Detail[1].InstitutionName != "B" {
		t.Fatalf("unexpected detail: %+v", loaded.Detail)
	}

	if err := runs.Create(ctx, domain.PipelineRun{
		ID: "run-2", Trigger: domain.TriggerScheduledPreSeason,
		ApplicationYear: 2026, Status: domain.RunRunning,
		StartedAt: time.Now().UTC().Add(time.Minute),
	}); err != nil {
		t.Fatalf("create second run: %v", err)
	}

	recent, err := runs.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "run-2" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
}
