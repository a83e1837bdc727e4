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

// SourceConfigRepository manages admin-configured generic sources.
type SourceConfigRepository struct {
	db *sql.DB
}

var _ ports.SourceConfigRepository = (*SourceConfigRepository)(nil)

// NewSourceConfigRepository wires the shared sql.DB.
func NewSourceConfigRepository(db *sql.DB) *SourceConfigRepository {
	return &SourceConfigRepository{db: db}
}

var sourceConfigColumns = []string{
	"id", "institution_id", "source_kind", "url", "slug", "extraction_group",
	"removal_selectors", "priority", "extraction_hints", "last_run_at",
	"last_run_status", "last_run_error",
}

// ListByInstitutionName returns the institution's configs ordered by
// descending priority.
func (r *SourceConfigRepository) ListByInstitutionName(ctx context.Context, name string) ([]domain.SourceConfig, error) {
	query, args, err := sq.Select(prefixed("sc", sourceConfigColumns)...).
		From("source_configs sc").
		Join("institutions i ON i.id = sc.institution_id").
		Where(sq.Eq{"i.name": name}).
		OrderBy("sc.priority DESC", "sc.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build config list: %w", err)
	}
	return r.query(ctx, query, args...)
}

// List returns every config ordered by institution then priority.
func (r *SourceConfigRepository) List(ctx context.Context) ([]domain.SourceConfig, error) {
	query, args, err := sq.Select(sourceConfigColumns...).
		From("source_configs").
		OrderBy("institution_id", "priority DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build config list: %w", err)
	}
	return r.query(ctx, query, args...)
}

// InstitutionNames lists the distinct schools with at least one config.
func (r *SourceConfigRepository) InstitutionNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT i.name FROM source_configs sc
		 JOIN institutions i ON i.id = sc.institution_id
		 ORDER BY i.name`)
	if err != nil {
		return nil, fmt.Errorf("query config institutions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return names, nil
}

// Create inserts a config row and returns its id.
func (r *SourceConfigRepository) Create(ctx context.Context, cfg domain.SourceConfig) (int64, error) {
	query, args, err := sq.Insert("source_configs").
		Columns("institution_id", "source_kind", "url", "slug", "extraction_group",
			"removal_selectors", "priority", "extraction_hints").
		Values(cfg.InstitutionID, cfg.SourceKind, cfg.URL, cfg.Slug, cfg.ExtractionGroup,
			cfg.RemovalSelectors, cfg.Priority, cfg.ExtractionHints).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build config insert: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("config id: %w", err)
	}
	return id, nil
}

// Update rewrites the admin-editable fields of a config row.
func (r *SourceConfigRepository) Update(ctx context.Context, cfg domain.SourceConfig) error {
	query, args, err := sq.Update("source_configs").
		Set("institution_id", cfg.InstitutionID).
		Set("source_kind", cfg.SourceKind).
		Set("url", cfg.URL).
		Set("slug", cfg.Slug).
		Set("extraction_group", cfg.ExtractionGroup).
		Set("removal_selectors", cfg.RemovalSelectors).
		Set("priority", cfg.Priority).
		Set("extraction_hints", cfg.ExtractionHints).
		Where(sq.Eq{"id": cfg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build config update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update config %d: %w", cfg.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a config row.
func (r *SourceConfigRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM source_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete config %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkRun records the outcome of the strategy's latest attempt on the row.
func (r *SourceConfigRepository) MarkRun(ctx context.Context, id int64, at time.Time, outcome domain.RunOutcome, runErr string) error {
	query, args, err := sq.Update("source_configs").
		Set("last_run_at", at.UTC()).
		Set("last_run_status", outcome).
		Set("last_run_error", runErr).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark run: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark run %d: %w", id, err)
	}
	return nil
}

func (r *SourceConfigRepository) query(ctx context.Context, query string, args ...any) ([]domain.SourceConfig, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query configs: %w", err)
	}
	defer rows.Close()

	var out []domain.SourceConfig
	for rows.Next() {
		var (
			cfg       domain.SourceConfig
			lastRunAt sql.NullTime
			status    sql.NullString
		)
		if err := rows.Scan(&cfg.ID, &cfg.InstitutionID, &cfg.SourceKind, &cfg.URL, &cfg.Slug,
			&cfg.ExtractionGroup, &cfg.RemovalSelectors, &cfg.Priority, &cfg.ExtractionHints,
			&lastRunAt, &status, &cfg.LastRunError); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		if lastRunAt.Valid {
			t := lastRunAt.Time
			cfg.LastRunAt = &t
		}
		if status.Valid {
			cfg.LastRunStatus = domain.RunOutcome(status.String)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func prefixed(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return out
}
