package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

func TestCreditRepositoryBalance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCreditRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(delta), 0) FROM credit_ledger")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(12))

	balance, err := repo.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 12, balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositorySpendOnProduct(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCreditRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM purchases")).
		WithArgs("user-1", "prod-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(delta), 0) FROM credit_ledger")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(10))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO purchases")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	purchase, err := repo.SpendOnProduct(context.Background(), "user-1", "prod-1", 6)
	require.NoError(t, err)
	require.Equal(t, 6, purchase.Credits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositorySpendInsufficientBalance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCreditRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM purchases")).
		WithArgs("user-1", "prod-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(delta), 0) FROM credit_ledger")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectRollback()

	_, err := repo.SpendOnProduct(context.Background(), "user-1", "prod-1", 6)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositorySpendTwiceRejected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCreditRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM purchases")).
		WithArgs("user-1", "prod-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.SpendOnProduct(context.Background(), "user-1", "prod-1", 6)
	require.ErrorIs(t, err, ErrAlreadyPurchased)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryRedeemVoucher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCreditRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO voucher_redemptions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	voucher := &models.Voucher{ID: "vch-1", Code: "WELKOM10", Credits: 10, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, repo.RedeemVoucher(context.Background(), "user-1", voucher))
	require.NoError(t, mock.ExpectationsWereMet())
}
