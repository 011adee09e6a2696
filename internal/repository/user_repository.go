package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

const userColumns = `id, name, email, image_path, is_student, is_instructor, institution_id, created_at`

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("record already exists")

// UserRepository provides access to visitors and operator accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a visitor by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &user, nil
}

// FindAppUser returns an operator account by identifier.
func (r *UserRepository) FindAppUser(ctx context.Context, id string) (*models.AppUser, error) {
	const query = `SELECT id, name, email, created_at FROM app_users WHERE id = $1 LIMIT 1`
	var user models.AppUser
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("find app user %s: %w", id, err)
	}
	return &user, nil
}

// Create registers a visitor. A colliding email is reported as ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()

	query := `INSERT INTO users (id, name, email, image_path, is_student, is_instructor, institution_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (email) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.ImagePath, user.IsStudent, user.IsInstructor, user.InstitutionID, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

// EmailExists reports whether a visitor already uses email, ignoring case.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email); err != nil {
		return false, fmt.Errorf("check user email: %w", err)
	}
	return exists, nil
}

// ListStudentsByInstitution returns the students attached to an institution.
func (r *UserRepository) ListStudentsByInstitution(ctx context.Context, institutionID string) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE institution_id = $1 AND is_student = TRUE ORDER BY id ASC`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, institutionID); err != nil {
		return nil, fmt.Errorf("list institution students: %w", err)
	}
	return users, nil
}

// List returns one page of visitors matching filter and the total match count.
// The page query is skipped when nothing matches.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	filter = filter.Normalize()
	where, args := userWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	if total == 0 || filter.Offset() >= total {
		return []models.User{}, total, nil
	}

	query := fmt.Sprintf("SELECT %s FROM users%s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d",
		userColumns, where, filter.SortBy, filter.SortOrder, filter.PageSize, filter.Offset())
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func userWhere(filter models.UserFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(format string, value interface{}) {
		args = append(args, value)
		conds = append(conds, strings.ReplaceAll(format, "?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.InstitutionID != "" {
		add("institution_id = ?", filter.InstitutionID)
	}
	if filter.IsStudent != nil {
		add("is_student = ?", *filter.IsStudent)
	}
	if filter.IsInstructor != nil {
		add("is_instructor = ?", *filter.IsInstructor)
	}
	if filter.Enrolled != nil {
		if *filter.Enrolled {
			conds = append(conds, "image_path IS NOT NULL AND image_path <> ''")
		} else {
			conds = append(conds, "(image_path IS NULL OR image_path = '')")
		}
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add("(LOWER(name) LIKE ? OR LOWER(COALESCE(email, '')) LIKE ?)", "%"+strings.ToLower(search)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
