package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type userAccountRepoStub struct {
	users         map[string]*models.User
	revokedTokens []string
	auditActions  []string
}

func newUserAccountRepoStub() *userAccountRepoStub {
	return &userAccountRepoStub{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "school@example.nl", FullName: "Vakcollege Rotterdam", Role: models.RoleSchool, Active: true},
		"user-2": {ID: "user-2", Email: "beheer@example.nl", FullName: "Beheerder", Role: models.RoleAdmin, Active: true},
	}}
}

func (s *userAccountRepoStub) List(ctx context.Context, page, limit int, search string) ([]models.User, int, error) {
	var out []models.User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *userAccountRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sqlNoRows()
	}
	return user, nil
}

func (s *userAccountRepoStub) UpdateRole(ctx context.Context, id string, role models.UserRole, updatedAt time.Time) error {
	user, ok := s.users[id]
	if !ok {
		return sqlNoRows()
	}
	user.Role = role
	return nil
}

func (s *userAccountRepoStub) UpdateEmail(ctx context.Context, id, email string, updatedAt time.Time) error {
	user, ok := s.users[id]
	if !ok {
		return sqlNoRows()
	}
	user.Email = email
	return nil
}

func (s *userAccountRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.revokedTokens = append(s.revokedTokens, userID)
	return nil
}

func (s *userAccountRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.auditActions = append(s.auditActions, log.Action)
	return nil
}

type creditGranterStub struct {
	granted []models.CreditLedgerEntry
	balance int
}

func (s *creditGranterStub) Grant(ctx context.Context, entry *models.CreditLedgerEntry) error {
	s.granted = append(s.granted, *entry)
	s.balance += entry.Delta
	return nil
}

func (s *creditGranterStub) Balance(ctx context.Context, userID string) (int, error) {
	return s.balance, nil
}

func TestUpdateRoleRevokesSessions(t *testing.T) {
	repo := newUserAccountRepoStub()
	svc := NewUserService(repo, &creditGranterStub{}, nil, zap.NewNop())

	user, err := svc.UpdateRole(context.Background(), "user-1", dto.UpdateUserRoleRequest{Role: "ADMIN"}, "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Equal(t, []string{"user-1"}, repo.revokedTokens, "role sits in issued tokens, sessions must die")
	assert.Contains(t, repo.auditActions, models.AuditActionUserChange)
}

func TestUpdateRoleSameRoleIsNoOp(t *testing.T) {
	repo := newUserAccountRepoStub()
	svc := NewUserService(repo, &creditGranterStub{}, nil, zap.NewNop())

	user, err := svc.UpdateRole(context.Background(), "user-1", dto.UpdateUserRoleRequest{Role: "SCHOOL"}, "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSchool, user.Role)
	assert.Empty(t, repo.revokedTokens)
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	repo := newUserAccountRepoStub()
	svc := NewUserService(repo, &creditGranterStub{}, nil, zap.NewNop())

	_, err := svc.UpdateRole(context.Background(), "user-1", dto.UpdateUserRoleRequest{Role: "SUPERUSER"}, "user-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateRoleUnknownUser(t *testing.T) {
	repo := newUserAccountRepoStub()
	svc := NewUserService(repo, &creditGranterStub{}, nil, zap.NewNop())

	_, err := svc.UpdateRole(context.Background(), "user-9", dto.UpdateUserRoleRequest{Role: "ADMIN"}, "user-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGrantCreditsAppendsLedgerEntry(t *testing.T) {
	repo := newUserAccountRepoStub()
	credits := &creditGranterStub{balance: 4}
	svc := NewUserService(repo, credits, nil, zap.NewNop())

	resp, err := svc.GrantCredits(context.Background(), "user-1", dto.GrantCreditsRequest{Credits: 10, Note: "coulance"}, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 10, resp.Granted)
	assert.Equal(t, 14, resp.Balance)
	require.Len(t, credits.granted, 1)
	assert.Equal(t, models.LedgerReasonAdmin, credits.granted[0].Reason)
	assert.Contains(t, repo.auditActions, models.AuditActionCreditGrant)
}

func TestGrantCreditsRejectsNonPositive(t *testing.T) {
	repo := newUserAccountRepoStub()
	svc := NewUserService(repo, &creditGranterStub{}, nil, zap.NewNop())

	_, err := svc.GrantCredits(context.Background(), "user-1", dto.GrantCreditsRequest{Credits: -3}, "user-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateEmail(t *testing.T) {
	repo := newUserAccountRepoStub()
	svc := NewUserService(repo, &creditGranterStub{}, nil, zap.NewNop())

	user, err := svc.UpdateEmail(context.Background(), "user-1", dto.UpdateUserEmailRequest{Email: "nieuw@example.nl"}, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "nieuw@example.nl", user.Email)

	_, err = svc.UpdateEmail(context.Background(), "user-1", dto.UpdateUserEmailRequest{Email: "geen-email"}, "user-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
