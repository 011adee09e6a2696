package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

// InstitutionRepository stores the institutions students and instructors belong to.
type InstitutionRepository struct {
	db *sqlx.DB
}

// NewInstitutionRepository creates a new InstitutionRepository.
func NewInstitutionRepository(db *sqlx.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// List returns every institution ordered by name.
func (r *InstitutionRepository) List(ctx context.Context) ([]models.Institution, error) {
	institutions := []models.Institution{}
	if err := r.db.SelectContext(ctx, &institutions, `SELECT id, name, created_at FROM institutions ORDER BY name ASC, id ASC`); err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	return institutions, nil
}

// FindByID returns an institution by identifier.
func (r *InstitutionRepository) FindByID(ctx context.Context, id string) (*models.Institution, error) {
	var inst models.Institution
	if err := r.db.GetContext(ctx, &inst, `SELECT id, name, created_at FROM institutions WHERE id = $1 LIMIT 1`, id); err != nil {
		return nil, fmt.Errorf("find institution %s: %w", id, err)
	}
	return &inst, nil
}

// Create inserts an institution. Names are unique; a clash returns ErrDuplicate.
func (r *InstitutionRepository) Create(ctx context.Context, inst *models.Institution) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	inst.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `INSERT INTO institutions (id, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		inst.ID, inst.Name, inst.CreatedAt)
	if err != nil {
		return fmt.Errorf("create institution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create institution: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}
