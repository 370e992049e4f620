package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type userAccountRepository interface {
	List(ctx context.Context, page, limit int, search string) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole, updatedAt time.Time) error
	UpdateEmail(ctx context.Context, id, email string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type userCreditGranter interface {
	Grant(ctx context.Context, entry *models.CreditLedgerEntry) error
	Balance(ctx context.Context, userID string) (int, error)
}

// UserService backs the admin accounts console: listing, role changes, email
// changes, and manual credit grants.
type UserService struct {
	users     userAccountRepository
	credits   userCreditGranter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(users userAccountRepository, credits userCreditGranter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, credits: credits, validator: validate, logger: logger}
}

// List returns a page of accounts.
func (s *UserService) List(ctx context.Context, query dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, query.Page, query.Limit, query.Search)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return users, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}

// UpdateRole switches a user's role. Active sessions are revoked because the
// role is baked into issued tokens.
func (s *UserService) UpdateRole(ctx context.Context, id string, req dto.UpdateUserRoleRequest, actorID string) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	newRole := models.UserRole(req.Role)
	if user.Role == newRole {
		return user, nil
	}

	now := time.Now().UTC()
	if err := s.users.UpdateRole(ctx, id, newRole, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	if err := s.users.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke sessions after role change", zap.String("user_id", id), zap.Error(err))
	}
	s.audit(ctx, actorID, id, models.AuditActionUserChange, fmt.Sprintf(`{"role":%q}`, req.Role))

	user.Role = newRole
	user.UpdatedAt = now
	return user, nil
}

// UpdateEmail changes a user's login email.
func (s *UserService) UpdateEmail(ctx context.Context, id string, req dto.UpdateUserEmailRequest, actorID string) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email payload")
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.users.UpdateEmail(ctx, id, req.Email, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update email")
	}
	s.audit(ctx, actorID, id, models.AuditActionUserChange, fmt.Sprintf(`{"email":%q}`, req.Email))

	user.Email = req.Email
	user.UpdatedAt = now
	return user, nil
}

// GrantCredits adds credits to a user's ledger and returns the new balance.
func (s *UserService) GrantCredits(ctx context.Context, id string, req dto.GrantCreditsRequest, actorID string) (*dto.GrantCreditsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}

	if _, err := s.loadUser(ctx, id); err != nil {
		return nil, err
	}

	entry := &models.CreditLedgerEntry{
		UserID: id,
		Delta:  req.Credits,
		Reason: models.LedgerReasonAdmin,
	}
	if err := s.credits.Grant(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant credits")
	}
	s.audit(ctx, actorID, id, models.AuditActionCreditGrant, fmt.Sprintf(`{"credits":%d,"note":%q}`, req.Credits, req.Note))

	balance, err := s.credits.Balance(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read balance")
	}
	return &dto.GrantCreditsResponse{UserID: id, Granted: req.Credits, Balance: balance}, nil
}

func (s *UserService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "gebruiker niet gevonden")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) audit(ctx context.Context, actorID, resourceID, action, newValues string) {
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: &resourceID,
		NewValues:  []byte(newValues),
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.Error(err))
	}
}
