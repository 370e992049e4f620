package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/internal/repository"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type creditRepository interface {
	Balance(ctx context.Context, userID string) (int, error)
	Grant(ctx context.Context, entry *models.CreditLedgerEntry) error
	ListPackages(ctx context.Context, includeInactive bool) ([]models.CreditPackage, error)
	GetPackage(ctx context.Context, id string) (*models.CreditPackage, error)
	CreatePackage(ctx context.Context, pkg *models.CreditPackage) error
	UpdatePackage(ctx context.Context, pkg *models.CreditPackage) error
	DeletePackage(ctx context.Context, id string) error
	CreateOrder(ctx context.Context, order *models.CreditOrder) error
	GetOrder(ctx context.Context, id string) (*models.CreditOrder, error)
	ListOrders(ctx context.Context, userID string) ([]models.CreditOrder, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error
	FindVoucher(ctx context.Context, code string) (*models.Voucher, error)
	RedeemVoucher(ctx context.Context, userID string, voucher *models.Voucher) error
}

type creditUserRepository interface {
	MarkWelcomed(ctx context.Context, id string, ts time.Time) (bool, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreditService handles balances, packages, orders, and vouchers. A school's
// first balance lookup triggers a one-time welcome grant.
type CreditService struct {
	credits        creditRepository
	users          creditUserRepository
	welcomeCredits int
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewCreditService constructs a CreditService.
func NewCreditService(credits creditRepository, users creditUserRepository, welcomeCredits int, validate *validator.Validate, logger *zap.Logger) *CreditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditService{
		credits:        credits,
		users:          users,
		welcomeCredits: welcomeCredits,
		validator:      validate,
		logger:         logger,
	}
}

// Balance returns the user's credit balance, granting welcome credits the
// first time a school asks for it. MarkWelcomed flips atomically so the
// grant happens at most once even under concurrent requests.
func (s *CreditService) Balance(ctx context.Context, userID string) (*dto.CreditBalance, error) {
	welcomed := false
	if s.welcomeCredits > 0 {
		first, err := s.users.MarkWelcomed(ctx, userID, time.Now().UTC())
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check welcome state")
		}
		if first {
			if err := s.credits.Grant(ctx, &models.CreditLedgerEntry{
				UserID: userID,
				Delta:  s.welcomeCredits,
				Reason: models.LedgerReasonWelcome,
			}); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant welcome credits")
			}
			welcomed = true
		}
	}

	balance, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	return &dto.CreditBalance{Credits: balance, WelcomeGranted: welcomed}, nil
}

// ListPackages returns purchasable packages; admins also see inactive ones.
func (s *CreditService) ListPackages(ctx context.Context, role models.UserRole) ([]models.CreditPackage, error) {
	packages, err := s.credits.ListPackages(ctx, role == models.RoleAdmin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list packages")
	}
	return packages, nil
}

// CreatePackage registers a credit package.
func (s *CreditService) CreatePackage(ctx context.Context, req dto.CreatePackageRequest) (*models.CreditPackage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid package payload")
	}
	pkg := &models.CreditPackage{
		Name:        strings.TrimSpace(req.Name),
		Credits:     req.Credits,
		PriceCents:  req.PriceCents,
		Description: strings.TrimSpace(req.Description),
		IsActive:    req.IsActive,
	}
	if err := s.credits.CreatePackage(ctx, pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create package")
	}
	return pkg, nil
}

// UpdatePackage saves package edits.
func (s *CreditService) UpdatePackage(ctx context.Context, id string, req dto.UpdatePackageRequest) (*models.CreditPackage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid package payload")
	}
	pkg, err := s.credits.GetPackage(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pakket niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
	}

	pkg.Name = strings.TrimSpace(req.Name)
	pkg.Credits = req.Credits
	pkg.PriceCents = req.PriceCents
	pkg.Description = strings.TrimSpace(req.Description)
	pkg.IsActive = req.IsActive

	if err := s.credits.UpdatePackage(ctx, pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update package")
	}
	return pkg, nil
}

// DeletePackage removes a package.
func (s *CreditService) DeletePackage(ctx context.Context, id string) error {
	if err := s.credits.DeletePackage(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "pakket niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete package")
	}
	return nil
}

// CreateOrder places a pending order for a package. Credits and price are
// copied from the package so later package edits do not change the order.
func (s *CreditService) CreateOrder(ctx context.Context, userID string, req dto.CreateOrderRequest) (*models.CreditOrder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload")
	}

	pkg, err := s.credits.GetPackage(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pakket niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
	}
	if !pkg.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "pakket niet gevonden")
	}

	order := &models.CreditOrder{
		UserID:      userID,
		PackageID:   pkg.ID,
		Credits:     pkg.Credits,
		PriceCents:  pkg.PriceCents,
		SchoolName:  strings.TrimSpace(req.SchoolName),
		ContactName: strings.TrimSpace(req.ContactName),
		Address:     strings.TrimSpace(req.Address),
		Status:      models.OrderStatusPending,
	}
	if err := s.credits.CreateOrder(ctx, order); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create order")
	}
	return order, nil
}

// ListOrders returns orders. Schools only see their own; admins see all.
func (s *CreditService) ListOrders(ctx context.Context, userID string, role models.UserRole) ([]models.CreditOrder, error) {
	scope := userID
	if role == models.RoleAdmin {
		scope = ""
	}
	orders, err := s.credits.ListOrders(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orders")
	}
	return orders, nil
}

// UpdateOrderStatus moves an order between lifecycle states. Fulfilling a
// pending order grants its credits to the buyer.
func (s *CreditService) UpdateOrderStatus(ctx context.Context, id string, req dto.UpdateOrderStatusRequest) (*models.CreditOrder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	order, err := s.credits.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	if order.Status == req.Status {
		return order, nil
	}
	if order.Status != models.OrderStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("order is al %s", order.Status))
	}

	if err := s.credits.UpdateOrderStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update order")
	}
	order.Status = req.Status

	if req.Status == models.OrderStatusFulfilled {
		if err := s.credits.Grant(ctx, &models.CreditLedgerEntry{
			UserID: order.UserID,
			Delta:  order.Credits,
			Reason: models.LedgerReasonOrder,
			RefID:  &order.ID,
		}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant order credits")
		}
	}
	return order, nil
}

// RedeemVoucher exchanges a voucher code for credits. A voucher works once
// per user; expired or deactivated vouchers are rejected.
func (s *CreditService) RedeemVoucher(ctx context.Context, userID string, req dto.RedeemVoucherRequest) (*dto.RedeemVoucherResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid voucher payload")
	}

	voucher, err := s.credits.FindVoucher(ctx, strings.ToUpper(strings.TrimSpace(req.Code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrVoucherInvalid, "voucher is ongeldig of verlopen")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up voucher")
	}
	if !voucher.IsActive || (voucher.ExpiresAt != nil && time.Now().UTC().After(*voucher.ExpiresAt)) {
		return nil, appErrors.Clone(appErrors.ErrVoucherInvalid, "voucher is ongeldig of verlopen")
	}

	if err := s.credits.RedeemVoucher(ctx, userID, voucher); err != nil {
		if errors.Is(err, repository.ErrVoucherRedeemed) {
			return nil, appErrors.Clone(appErrors.ErrVoucherInvalid, "voucher is al verzilverd")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to redeem voucher")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionVoucherRedeem,
		Resource:   "voucher",
		ResourceID: &voucher.ID,
		NewValues:  []byte(fmt.Sprintf(`{"credits":%d}`, voucher.Credits)),
	}); err != nil {
		s.logger.Warn("failed to record voucher audit log", zap.Error(err))
	}

	balance, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	return &dto.RedeemVoucherResponse{Credits: voucher.Credits, Balance: balance}, nil
}
