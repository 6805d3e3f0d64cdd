package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/auth"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/config"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/repository"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

// AuthService manages portal accounts and token issuance.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	cfg    config.AuthConfig
	logger *zap.Logger
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterUser creates a customer account and returns a signed token.
func (s *AuthService) RegisterUser(ctx context.Context, name, email, password string) (*domain.User, string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if name == "" || email == "" || password == "" {
		return nil, "", time.Time{}, errorutil.NewValidationError("name, email and password are required", nil)
	}

	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, "", time.Time{}, errorutil.NewConflict("email already registered", nil)
	} else if err != nil && !repository.IsNoRows(err) {
		return nil, "", time.Time{}, errorutil.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, "", time.Time{}, errorutil.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", time.Time{}, errorutil.NewInternalError(err)
	}

	token, exp, err := s.tokens.GenerateToken(user.Email, user.Role)
	if err != nil {
		return nil, "", time.Time{}, errorutil.NewInternalError(err)
	}
	return user, token, exp, nil
}

// Login authenticates any account, customer or admin, and returns a signed
// token carrying the account's role claim.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, "", time.Time{}, errorutil.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, errorutil.NewInternalError(err)
	}
	if user.Status != domain.UserStatusActive {
		return nil, "", time.Time{}, errorutil.NewForbidden("account suspended")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, errorutil.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokens.GenerateToken(user.Email, user.Role)
	if err != nil {
		return nil, "", time.Time{}, errorutil.NewInternalError(err)
	}
	return user, token, exp, nil
}

// EnsureAdmin creates the configured admin account if it does not exist
// yet. A no-op when admin credentials are not configured.
func (s *AuthService) EnsureAdmin(ctx context.Context) error {
	if s.cfg.AdminEmail == "" || s.cfg.AdminPassword == "" {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(s.cfg.AdminEmail))

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !repository.IsNoRows(err) {
		return err
	}

	hash, err := auth.HashPassword(s.cfg.AdminPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	admin := &domain.User{
		Name:         s.cfg.AdminName,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return err
	}
	s.logger.Info("admin account created", zap.String("email", email))
	return nil
}

// TokenManager exposes the token manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}
