package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

func TestListInstitutions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstitutionRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, created_at FROM institutions ORDER BY name ASC, id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("i1", "Alpha College", now).
			AddRow("i2", "Beta School", now))

	institutions, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, institutions, 2)
	assert.Equal(t, "Alpha College", institutions[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListInstitutionsEmptyIsNotNil(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstitutionRepository(db)

	mock.ExpectQuery("FROM institutions").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}))

	institutions, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, institutions)
	assert.Empty(t, institutions)
}

func TestFindInstitutionNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstitutionRepository(db)

	mock.ExpectQuery("FROM institutions WHERE id = \\$1").WithArgs("i9").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "i9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInstitution(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstitutionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO institutions (id, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "Alpha College", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO institutions").
		WithArgs(sqlmock.AnyArg(), "Alpha College", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO institutions").
		WillReturnError(errors.New("connection reset"))

	inst := &models.Institution{Name: "Alpha College"}
	require.NoError(t, repo.Create(context.Background(), inst))
	assert.NotEmpty(t, inst.ID)

	assert.ErrorIs(t, repo.Create(context.Background(), &models.Institution{Name: "Alpha College"}), ErrDuplicate)

	err := repo.Create(context.Background(), &models.Institution{Name: "Gamma"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
