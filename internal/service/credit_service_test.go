package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/internal/repository"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type creditRepoStub struct {
	balances map[string]int
	ledger   []models.CreditLedgerEntry
	packages map[string]*models.CreditPackage
	orders   map[string]*models.CreditOrder
	vouchers map[string]*models.Voucher
	redeemed map[string]bool
}

func newCreditRepoStub() *creditRepoStub {
	return &creditRepoStub{
		balances: map[string]int{},
		packages: map[string]*models.CreditPackage{},
		orders:   map[string]*models.CreditOrder{},
		vouchers: map[string]*models.Voucher{},
		redeemed: map[string]bool{},
	}
}

func (s *creditRepoStub) Balance(ctx context.Context, userID string) (int, error) {
	return s.balances[userID], nil
}

func (s *creditRepoStub) Grant(ctx context.Context, entry *models.CreditLedgerEntry) error {
	s.ledger = append(s.ledger, *entry)
	s.balances[entry.UserID] += entry.Delta
	return nil
}

func (s *creditRepoStub) ListPackages(ctx context.Context, includeInactive bool) ([]models.CreditPackage, error) {
	var out []models.CreditPackage
	for _, pkg := range s.packages {
		if !includeInactive && !pkg.IsActive {
			continue
		}
		out = append(out, *pkg)
	}
	return out, nil
}

func (s *creditRepoStub) GetPackage(ctx context.Context, id string) (*models.CreditPackage, error) {
	pkg, ok := s.packages[id]
	if !ok {
		return nil, sqlNoRows()
	}
	copied := *pkg
	return &copied, nil
}

func (s *creditRepoStub) CreatePackage(ctx context.Context, pkg *models.CreditPackage) error {
	if pkg.ID == "" {
		pkg.ID = uuid.NewString()
	}
	s.packages[pkg.ID] = pkg
	return nil
}

func (s *creditRepoStub) UpdatePackage(ctx context.Context, pkg *models.CreditPackage) error {
	s.packages[pkg.ID] = pkg
	return nil
}

func (s *creditRepoStub) DeletePackage(ctx context.Context, id string) error {
	if _, ok := s.packages[id]; !ok {
		return sqlNoRows()
	}
	delete(s.packages, id)
	return nil
}

func (s *creditRepoStub) CreateOrder(ctx context.Context, order *models.CreditOrder) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	s.orders[order.ID] = order
	return nil
}

func (s *creditRepoStub) GetOrder(ctx context.Context, id string) (*models.CreditOrder, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, sqlNoRows()
	}
	copied := *order
	return &copied, nil
}

func (s *creditRepoStub) ListOrders(ctx context.Context, userID string) ([]models.CreditOrder, error) {
	var out []models.CreditOrder
	for _, order := range s.orders {
		if userID != "" && order.UserID != userID {
			continue
		}
		out = append(out, *order)
	}
	return out, nil
}

func (s *creditRepoStub) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	order, ok := s.orders[id]
	if !ok {
		return sqlNoRows()
	}
	order.Status = status
	return nil
}

func (s *creditRepoStub) FindVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	voucher, ok := s.vouchers[code]
	if !ok {
		return nil, sqlNoRows()
	}
	return voucher, nil
}

func (s *creditRepoStub) RedeemVoucher(ctx context.Context, userID string, voucher *models.Voucher) error {
	key := userID + "/" + voucher.ID
	if s.redeemed[key] {
		return repository.ErrVoucherRedeemed
	}
	s.redeemed[key] = true
	s.balances[userID] += voucher.Credits
	return nil
}

type creditUserStub struct {
	welcomed map[string]bool
	logs     []models.AuditLog
}

func newCreditUserStub() *creditUserStub {
	return &creditUserStub{welcomed: map[string]bool{}}
}

func (s *creditUserStub) MarkWelcomed(ctx context.Context, id string, ts time.Time) (bool, error) {
	if s.welcomed[id] {
		return false, nil
	}
	s.welcomed[id] = true
	return true, nil
}

func (s *creditUserStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

func newCreditServiceForTest(welcomeCredits int) (*CreditService, *creditRepoStub, *creditUserStub) {
	credits := newCreditRepoStub()
	users := newCreditUserStub()
	svc := NewCreditService(credits, users, welcomeCredits, nil, zap.NewNop())
	return svc, credits, users
}

func TestBalanceGrantsWelcomeCreditsOnce(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(10)

	balance, err := svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, balance.WelcomeGranted)
	assert.Equal(t, 10, balance.Credits)
	require.Len(t, credits.ledger, 1)
	assert.Equal(t, models.LedgerReasonWelcome, credits.ledger[0].Reason)

	balance, err = svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, balance.WelcomeGranted)
	assert.Equal(t, 10, balance.Credits)
	assert.Len(t, credits.ledger, 1)
}

func TestBalanceWithoutWelcomeCredits(t *testing.T) {
	svc, credits, users := newCreditServiceForTest(0)
	credits.balances["user-1"] = 4

	balance, err := svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, balance.WelcomeGranted)
	assert.Equal(t, 4, balance.Credits)
	assert.Empty(t, users.welcomed)
}

func TestListPackagesHidesInactiveFromSchools(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	credits.packages["pkg-1"] = &models.CreditPackage{ID: "pkg-1", Name: "Starter", Credits: 10, IsActive: true}
	credits.packages["pkg-2"] = &models.CreditPackage{ID: "pkg-2", Name: "Oud", Credits: 5, IsActive: false}

	packages, err := svc.ListPackages(context.Background(), models.RoleSchool)
	require.NoError(t, err)
	assert.Len(t, packages, 1)

	packages, err = svc.ListPackages(context.Background(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, packages, 2)
}

func TestCreateOrderCopiesPackageSnapshot(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	credits.packages["pkg-1"] = &models.CreditPackage{ID: "pkg-1", Name: "Starter", Credits: 10, PriceCents: 9900, IsActive: true}

	order, err := svc.CreateOrder(context.Background(), "user-1", dto.CreateOrderRequest{
		PackageID:   "pkg-1",
		SchoolName:  "Vakcollege Noord",
		ContactName: "J. de Vries",
		Address:     "Schoolstraat 1, Zwolle",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 10, order.Credits)
	assert.Equal(t, 9900, order.PriceCents)

	// Later package edits must not change the placed order.
	credits.packages["pkg-1"].Credits = 99
	stored, err := credits.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Credits)
}

func TestCreateOrderRejectsInactivePackage(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	credits.packages["pkg-1"] = &models.CreditPackage{ID: "pkg-1", Name: "Oud", Credits: 5, PriceCents: 100, IsActive: false}

	_, err := svc.CreateOrder(context.Background(), "user-1", dto.CreateOrderRequest{
		PackageID:   "pkg-1",
		SchoolName:  "Vakcollege Noord",
		ContactName: "J. de Vries",
		Address:     "Schoolstraat 1, Zwolle",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFulfillOrderGrantsCredits(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	credits.orders["order-1"] = &models.CreditOrder{ID: "order-1", UserID: "user-1", Credits: 25, Status: models.OrderStatusPending}

	order, err := svc.UpdateOrderStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: models.OrderStatusFulfilled})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFulfilled, order.Status)
	assert.Equal(t, 25, credits.balances["user-1"])
	require.Len(t, credits.ledger, 1)
	assert.Equal(t, models.LedgerReasonOrder, credits.ledger[0].Reason)
	require.NotNil(t, credits.ledger[0].RefID)
	assert.Equal(t, "order-1", *credits.ledger[0].RefID)
}

func TestUpdateOrderStatusRejectsNonPending(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	credits.orders["order-1"] = &models.CreditOrder{ID: "order-1", UserID: "user-1", Credits: 25, Status: models.OrderStatusCancelled}

	_, err := svc.UpdateOrderStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: models.OrderStatusFulfilled})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "cancelled")
	assert.Empty(t, credits.ledger)
}

func TestUpdateOrderStatusSameStatusIsNoop(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	credits.orders["order-1"] = &models.CreditOrder{ID: "order-1", UserID: "user-1", Credits: 25, Status: models.OrderStatusFulfilled}

	order, err := svc.UpdateOrderStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: models.OrderStatusFulfilled})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFulfilled, order.Status)
	assert.Empty(t, credits.ledger)
}

func TestRedeemVoucherNormalisesCode(t *testing.T) {
	svc, credits, users := newCreditServiceForTest(0)
	credits.vouchers["WELKOM25"] = &models.Voucher{ID: "v-1", Code: "WELKOM25", Credits: 25, IsActive: true}

	resp, err := svc.RedeemVoucher(context.Background(), "user-1", dto.RedeemVoucherRequest{Code: "  welkom25 "})
	require.NoError(t, err)
	assert.Equal(t, 25, resp.Credits)
	assert.Equal(t, 25, resp.Balance)
	require.Len(t, users.logs, 1)
	assert.Equal(t, models.AuditActionVoucherRedeem, users.logs[0].Action)
}

func TestRedeemVoucherTwiceRejected(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	credits.vouchers["WELKOM25"] = &models.Voucher{ID: "v-1", Code: "WELKOM25", Credits: 25, IsActive: true}

	_, err := svc.RedeemVoucher(context.Background(), "user-1", dto.RedeemVoucherRequest{Code: "WELKOM25"})
	require.NoError(t, err)

	_, err = svc.RedeemVoucher(context.Background(), "user-1", dto.RedeemVoucherRequest{Code: "WELKOM25"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrVoucherInvalid.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "al verzilverd")
}

func TestRedeemVoucherExpired(t *testing.T) {
	svc, credits, _ := newCreditServiceForTest(0)
	expired := time.Now().Add(-time.Hour)
	credits.vouchers["OUD"] = &models.Voucher{ID: "v-2", Code: "OUD", Credits: 5, IsActive: true, ExpiresAt: &expired}
	credits.vouchers["UIT"] = &models.Voucher{ID: "v-3", Code: "UIT", Credits: 5, IsActive: false}

	for _, code := range []string{"OUD", "UIT", "BESTAATNIET"} {
		_, err := svc.RedeemVoucher(context.Background(), "user-1", dto.RedeemVoucherRequest{Code: code})
		require.Error(t, err, code)
		assert.Equal(t, appErrors.ErrVoucherInvalid.Code, appErrors.FromError(err).Code)
	}
	assert.Zero(t, credits.balances["user-1"])
}
