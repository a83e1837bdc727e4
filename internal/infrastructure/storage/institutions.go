package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
)

// InstitutionRepository resolves school names to durable identities.
type InstitutionRepository struct {
	db *sql.DB
}

var _ ports.InstitutionRepository = (*InstitutionRepository)(nil)

// NewInstitutionRepository wires the shared sql.DB.
func NewInstitutionRepository(db *sql.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// UpsertByName inserts the institution if absent and returns its record.
func (r *InstitutionRepository) UpsertByName(ctx context.Context, name string) (domain.Institution, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO institutions (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return domain.Institution{}, fmt.Errorf("upsert institution %s: %w", name, err)
	}

	var inst domain.Institution
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM institutions WHERE name = ?`, name).Scan(&inst.ID, &inst.Name)
	if err != nil {
		return domain.Institution{}, fmt.Errorf("load institution %s: %w", name, err)
	}
	return inst, nil
}

// List returns every known institution ordered by name.
func (r *InstitutionRepository) List(ctx context.Context) ([]domain.Institution, error) {
	query, args, err := sq.Select("id", "name").From("institutions").OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build institution list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query institutions: %w", err)
	}
	defer rows.Close()

	var out []domain.Institution
	for rows.Next() {
		var inst domain.Institution
		if err := rows.Scan(&inst.ID, &inst.Name); err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
