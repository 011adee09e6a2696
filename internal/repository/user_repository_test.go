package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "name", "email", "image_path", "is_student", "is_instructor", "institution_id", "created_at"}

func TestFindUserByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "Ana", "ana@example.com", "https://img/ana.jpg", false, true, "inst-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, image_path, is_student, is_instructor, institution_id, created_at FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("u1").
		WillReturnRows(rows)

	user, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, user.IsInstructor)
	require.NotNil(t, user.InstitutionID)
	assert.Equal(t, "inst-1", *user.InstitutionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAppUserNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM app_users WHERE id = \\$1").WithArgs("op-9").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindAppUser(context.Background(), "op-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStudentsByInstitution(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("s1", "Bo", nil, nil, true, false, "inst-1", now).
		AddRow("s2", "Cy", nil, nil, true, false, "inst-1", now)
	mock.ExpectQuery("FROM users WHERE institution_id = \\$1 AND is_student = TRUE").
		WithArgs("inst-1").
		WillReturnRows(rows)

	students, err := repo.ListStudentsByInstitution(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Nil(t, students[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	students := true
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE institution_id = $1 AND is_student = $2")).
		WithArgs("inst-1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	listRows := sqlmock.NewRows(userRowColumns).
		AddRow("s1", "Bo", "bo@example.com", nil, true, false, "inst-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE institution_id = $1 AND is_student = $2 ORDER BY name ASC, id ASC LIMIT 20 OFFSET 0")).
		WithArgs("inst-1", true).
		WillReturnRows(listRows)

	users, total, err := repo.List(context.Background(), models.UserFilter{InstitutionID: "inst-1", IsStudent: &students, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersEnrolledSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	enrolled := false
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE (image_path IS NULL OR image_path = '') AND (LOWER(name) LIKE $1 OR LOWER(COALESCE(email, '')) LIKE $1)")).
		WithArgs("%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	users, total, err := repo.List(context.Background(), models.UserFilter{Enrolled: &enrolled, Search: " Ana ", SortBy: "password"})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersPastLastPage(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))

	users, total, err := repo.List(context.Background(), models.UserFilter{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 15, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	email, inst := "ana@example.com", "inst-1"
	user := &models.User{Name: "Ana", Email: &email, IsStudent: true, InstitutionID: &inst}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, name, email, image_path, is_student, is_instructor, institution_id, created_at)")).
		WithArgs(sqlmock.AnyArg(), "Ana", "ana@example.com", nil, true, false, "inst-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	email := "ana@example.com"
	mock.ExpectExec("INSERT INTO users .* ON CONFLICT \\(email\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), &models.User{ID: "u1", Name: "Ana", Email: &email})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserEmailExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))")).
		WithArgs("Ana@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "Ana@Example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
