package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
)

// PromptRepository persists deduplicated prompts with their provenance rows.
type PromptRepository struct {
	db *sql.DB
}

var _ ports.PromptRepository = (*PromptRepository)(nil)

// NewPromptRepository wires the shared sql.DB.
func NewPromptRepository(db *sql.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// ExistsByNaturalKey reports whether the (institution, year, text) triple is
// already stored.
func (r *PromptRepository) ExistsByNaturalKey(ctx context.Context, institutionID int64, year int, promptText string) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("prompts").
		Where(sq.Eq{
			"institution_id":   institutionID,
			"application_year": year,
			"prompt_text":      promptText,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("query natural key: %w", err)
	}
	return count > 0, nil
}

// Create inserts the prompt and its provenance entries in one transaction.
func (r *PromptRepository) Create(ctx context.Context, prompt domain.PersistedPrompt) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query, args, err := sq.Insert("prompts").
		Columns("institution_id", "application_year", "category", "prompt_text",
			"translated_text", "word_limit", "is_required", "sort_order",
			"review_status", "advisory_tips", "topic_tag", "created_at", "updated_at").
		Values(prompt.InstitutionID, prompt.ApplicationYear, prompt.Category, prompt.PromptText,
			prompt.TranslatedText, prompt.WordLimit, prompt.IsRequired, prompt.SortOrder,
			prompt.ReviewStatus, prompt.AdvisoryTips, prompt.TopicTag, now, now).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prompt insert: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert prompt: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("prompt id: %w", err)
	}

	for _, entry := range prompt.Provenance {
		query, args, err := sq.Insert("prompt_sources").
			Columns("prompt_id", "source_kind", "source_url", "raw_snippet", "confidence").
			Values(id, entry.SourceKind, entry.SourceURL, entry.RawSnippet, entry.Confidence).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build provenance insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert provenance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// ListByInstitutionYear returns the institution's prompts for a cycle, with
// provenance attached, ordered by sort order then id.
func (r *PromptRepository) ListByInstitutionYear(ctx context.Context, institutionID int64, year int) ([]domain.PersistedPrompt, error) {
	query, args, err := sq.Select("id", "institution_id", "application_year", "category",
		"prompt_text", "translated_text", "word_limit", "is_required", "sort_order",
		"review_status", "advisory_tips", "topic_tag", "created_at", "updated_at").
		From("prompts").
		Where(sq.Eq{"institution_id": institutionID, "application_year": year}).
		OrderBy("sort_order", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prompt list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []domain.PersistedPrompt
	for rows.Next() {
		var p domain.PersistedPrompt
		if err := rows.Scan(&p.ID, &p.InstitutionID, &p.ApplicationYear, &p.Category,
			&p.PromptText, &p.TranslatedText, &p.WordLimit, &p.IsRequired, &p.SortOrder,
			&p.ReviewStatus, &p.AdvisoryTips, &p.TopicTag, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	for i := range prompts {
		if prompts[i].Provenance, err = r.provenance(ctx, prompts[i].ID); err != nil {
			return nil, err
		}
	}
	return prompts, nil
}

func (r *PromptRepository) provenance(ctx context.Context, promptID int64) ([]domain.ProvenanceEntry, error) {
	query, args, err := sq.Select("source_kind", "source_url", "raw_snippet", "confidence").
		From("prompt_sources").
		Where(sq.Eq{"prompt_id": promptID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build provenance list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var entries []domain.ProvenanceEntry
	for rows.Next() {
		var e domain.ProvenanceEntry
		if err := rows.Scan(&e.SourceKind, &e.SourceURL, &e.RawSnippet, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

// Coverage counts institutions with at least one verified prompt for the
// year, next to the total institution count. The shared pseudo-institution
// stays out of both sides: it is not a school to be covered.
func (r *PromptRepository) Coverage(ctx context.Context, year int) (int, int, error) {
	var verified int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT p.institution_id) FROM prompts p
		 JOIN institutions i ON i.id = p.institution_id
		 WHERE p.application_year = ? AND p.review_status = ? AND i.name != ?`,
		year, domain.ReviewVerified, domain.CommonAppInstitution).Scan(&verified)
	if err != nil {
		return 0, 0, fmt.Errorf("query verified coverage: %w", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM institutions WHERE name != ?`,
		domain.CommonAppInstitution).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("query institution count: %w", err)
	}
	return verified, total, nil
}

// YearOverYearChanges diffs the year's prompt texts against the previous
// cycle per institution: texts only in the new year are "added", texts only
// in the previous year are "removed".
func (r *PromptRepository) YearOverYearChanges(ctx context.Context, year int) ([]domain.PromptChange, error) {
	const diffQuery = `
		SELECT i.name, p.application_year, p.prompt_text, ?
		FROM prompts p
		JOIN institutions i ON i.id = p.institution_id
		WHERE p.application_year = ?
		  AND NOT EXISTS (
		      SELECT 1 FROM prompts prev
		      WHERE prev.institution_id = p.institution_id
		        AND prev.application_year = ?
		        AND prev.prompt_text = p.prompt_text)
		ORDER BY i.name, p.id`

	var changes []domain.PromptChange
	collect := func(changeType domain.PromptChangeType, inYear, notInYear int) error {
		rows, err := r.db.QueryContext(ctx, diffQuery, changeType, inYear, notInYear)
		if err != nil {
			return fmt.Errorf("query %s prompts: %w", changeType, err)
		}
		defer rows.Close()

		for rows.Next() {
			var c domain.PromptChange
			if err := rows.Scan(&c.InstitutionName, &c.ApplicationYear, &c.PromptText, &c.Change); err != nil {
				return fmt.Errorf("scan change: %w", err)
			}
			changes = append(changes, c)
		}
		return rows.Err()
	}

	if err := collect(domain.PromptAdded, year, year-1); err != nil {
		return nil, err
	}
	if err := collect(domain.PromptRemoved, year-1, year); err != nil {
		return nil, err
	}
	return changes, nil
}
