package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/refugios-lanche/api/internal/platform/auth"
	"github.com/refugios-lanche/api/internal/repositories"
)

var (
	// ErrAuthInvalidCredentials is returned on unknown email or password mismatch.
	// The two cases are deliberately indistinguishable to the caller.
	ErrAuthInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAuthAccountDisabled is returned when the account exists but was deactivated.
	ErrAuthAccountDisabled = errors.New("auth: account disabled")
	// ErrAuthInvalidInput signals missing or malformed login fields.
	ErrAuthInvalidInput = errors.New("auth: invalid input")
	// ErrAuthAdminNotFound indicates the admin account could not be located.
	ErrAuthAdminNotFound = errors.New("auth: admin not found")
)

// TokenIssuer mints signed API tokens for authenticated admins.
type TokenIssuer interface {
	Issue(identity auth.AdminIdentity) (string, time.Time, error)
}

// AuthServiceDeps bundles collaborators required to construct the auth service.
type AuthServiceDeps struct {
	Admins repositories.AdminRepository
	Tokens TokenIssuer
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type authService struct {
	admins repositories.AdminRepository
	tokens TokenIssuer
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewAuthService wires dependencies into a concrete AuthService implementation.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Admins == nil {
		return nil, errors.New("auth service: admin repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("auth service: token issuer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &authService{
		admins: deps.Admins,
		tokens: deps.Tokens,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *authService) Login(ctx context.Context, cmd LoginCommand) (AuthSession, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return AuthSession{}, fmt.Errorf("%w: email is required", ErrAuthInvalidInput)
	}
	if cmd.Password == "" {
		return AuthSession{}, fmt.Errorf("%w: password is required", ErrAuthInvalidInput)
	}

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return AuthSession{}, ErrAuthInvalidCredentials
		}
		return AuthSession{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(cmd.Password)); err != nil {
		s.logger(ctx, "auth.login.rejected", map[string]any{"email": email})
		return AuthSession{}, ErrAuthInvalidCredentials
	}

	if !admin.Active {
		return AuthSession{}, ErrAuthAccountDisabled
	}

	token, expiresAt, err := s.tokens.Issue(auth.AdminIdentity{
		ID:    admin.ID,
		Email: admin.Email,
		Name:  admin.Name,
		Role:  admin.Role,
	})
	if err != nil {
		return AuthSession{}, fmt.Errorf("auth: issue token: %w", err)
	}

	now := s.clock()
	admin.LastLoginAt = &now
	admin.UpdatedAt = now
	if err := s.admins.Update(ctx, admin); err != nil {
		// Login still succeeds; the timestamp is informational.
		s.logger(ctx, "auth.login.timestamp_update_failed", map[string]any{
			"adminId": admin.ID,
			"error":   err.Error(),
		})
	}

	return AuthSession{Token: token, ExpiresAt: expiresAt, Admin: admin}, nil
}

func (s *authService) Profile(ctx context.Context, adminID string) (Admin, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return Admin{}, fmt.Errorf("%w: admin id is required", ErrAuthInvalidInput)
	}

	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Admin{}, ErrAuthAdminNotFound
		}
		return Admin{}, err
	}
	if !admin.Active {
		return Admin{}, ErrAuthAccountDisabled
	}
	return admin, nil
}

// HashPassword derives the bcrypt hash stored on admin accounts.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: password is required", ErrAuthInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
