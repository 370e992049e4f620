package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProductRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProductRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	product := &models.ExamProduct{
		Code:        "BWI-2026",
		Title:       "Bouw, wonen en interieur",
		Description: "Profielvak BWI",
		Credits:     6,
		Cohort:      "2026-2027",
	}
	require.NoError(t, repo.Create(context.Background(), product))
	require.NotEmpty(t, product.ID)
	require.Equal(t, models.ProductStatusDraft, product.Status)

	rows := sqlmock.NewRows([]string{"id", "code", "title", "description", "credits", "cohort", "status", "created_at", "updated_at"}).
		AddRow(product.ID, "BWI-2026", "Bouw, wonen en interieur", "Profielvak BWI", 6, "2026-2027", "draft", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, title, description")).
		WithArgs(product.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), product.ID)
	require.NoError(t, err)
	require.Equal(t, product.Code, found.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProductRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, title, description")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProductRepositoryListHidesDraftsFromSchools(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProductRepository(db)
	rows := sqlmock.NewRows([]string{"id", "code", "title", "description", "credits", "cohort", "status", "created_at", "updated_at"}).
		AddRow("prod-1", "PIE-2026", "Produceren, installeren en energie", "", 5, "2026-2027", "available", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, title, description")).
		WithArgs(string(models.ProductStatusAvailable)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(string(models.ProductStatusAvailable)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.ProductFilter{Page: 1, Limit: 10}, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepositoryListAdminSearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProductRepository(db)
	rows := sqlmock.NewRows([]string{"id", "code", "title", "description", "credits", "cohort", "status", "created_at", "updated_at"}).
		AddRow("prod-2", "ZW-2026", "Zorg en welzijn", "", 4, "2026-2027", "draft", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, title, description")).
		WithArgs(string(models.ProductStatusDraft), "%zorg%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(string(models.ProductStatusDraft), "%zorg%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.ProductFilter{
		Page:   1,
		Limit:  25,
		Search: "Zorg",
		Filter: models.CatalogFilterDraft,
	}, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProductRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.ProductStatusAvailable)
	require.ErrorIs(t, err, sql.ErrNoRows)
}
