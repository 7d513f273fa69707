package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/audit"
	"github.com/clinicgrid/intake-engine/pkg/auth"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
)

const minPasswordLength = 8

// LoginResult carries the issued token alongside the account it belongs to.
type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *models.AdminUser `json:"user"`
}

// CreateAdminUserInput is the admin-supplied account description.
type CreateAdminUserInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// AdminUserService owns operator accounts and credential verification.
type AdminUserService interface {
	// Login verifies credentials and issues an operator token.
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	// CreateUser registers a new operator account.
	CreateUser(ctx context.Context, input CreateAdminUserInput) (*models.AdminUser, error)
	// EnsureBootstrapAdmin seeds the configured first admin account when
	// it does not exist yet. No-op when email or password is empty.
	EnsureBootstrapAdmin(ctx context.Context, email, password string) error
}

type adminUserService struct {
	userRepo repositories.AdminUserRepository
	issuer   *auth.TokenIssuer
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewAdminUserService creates a new AdminUserService.
func NewAdminUserService(
	userRepo repositories.AdminUserRepository,
	issuer *auth.TokenIssuer,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) AdminUserService {
	return &adminUserService{
		userRepo: userRepo,
		issuer:   issuer,
		auditor:  auditor,
		logger:   logger.Named("admin-users"),
	}
}

func (s *adminUserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	if strings.TrimSpace(password) == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, normalized)
	if err != nil {
		// Not-found folds into invalid credentials so the endpoint
		// cannot be used to enumerate accounts.
		if errors.Is(err, apperrors.ErrNotFound) {
			s.auditor.LogLoginAttempt(ctx, normalized, false)
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		s.auditor.LogLoginAttempt(ctx, normalized, false)
		return nil, apperrors.ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now

	s.auditor.LogLoginAttempt(ctx, normalized, true)
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

func (s *adminUserService) CreateUser(ctx context.Context, input CreateAdminUserInput) (*models.AdminUser, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, &apperrors.ValidationError{Missing: []string{"email"}}
	}
	if len(strings.TrimSpace(input.Password)) < minPasswordLength {
		return nil, &apperrors.ValidationError{Missing: []string{"password"}}
	}
	role := input.Role
	if role == "" {
		role = models.RoleReviewer
	}
	if role != models.RoleAdmin && role != models.RoleReviewer {
		return nil, &apperrors.ValidationError{Missing: []string{"role"}}
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("account %s already exists: %w", email, apperrors.ErrConflict)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}

	user := &models.AdminUser{
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("Admin user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", user.Role))
	return user, nil
}

func (s *adminUserService) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return fmt.Errorf("invalid bootstrap email: %w", err)
	}

	if _, err := s.userRepo.GetByEmail(ctx, normalized); err == nil {
		return nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	_, err = s.CreateUser(ctx, CreateAdminUserInput{
		Email:    normalized,
		Password: password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to seed bootstrap admin: %w", err)
	}

	s.logger.Info("Bootstrap admin seeded", zap.String("email", normalized))
	return nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}

// Ensure adminUserService implements AdminUserService at compile time.
var _ AdminUserService = (*adminUserService)(nil)
