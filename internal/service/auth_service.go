package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"famsync/internal/models"
	"famsync/internal/repository"
	"famsync/internal/security"
	"famsync/internal/validation"
)

// AuthGateway is the identity source consumed by the sync engine and the
// registration flow.
type AuthGateway interface {
	// CurrentUser returns the caller's identity, or nil when there is none
	CurrentUser(ctx context.Context) (*models.Identity, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	CreateAccount(ctx context.Context, email, password string) (*models.Identity, error)
}

// AuthService is the local AuthGateway backed by the accounts table
type AuthService struct {
	accountRepo *repository.AccountRepository
	tokens      *security.TokenManager
	log         *zap.Logger
}

var _ AuthGateway = (*AuthService)(nil)

// NewAuthService creates a new auth service
func NewAuthService(accountRepo *repository.AccountRepository, tokens *security.TokenManager, logger *zap.Logger) *AuthService {
	return &AuthService{
		accountRepo: accountRepo,
		tokens:      tokens,
		log:         logger,
	}
}

// CreateAccount registers a new identity for email and password
func (s *AuthService) CreateAccount(ctx context.Context, email, password string) (*models.Identity, error) {
	email = strings.TrimSpace(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := s.accountRepo.CreateAccount(ctx, security.NewIdentityID(), email, passwordHash)
	if err != nil {
		return nil, err
	}

	s.log.Info("account created", zap.String("identity_id", account.IdentityID))
	return &models.Identity{ID: account.IdentityID, Email: account.Email}, nil
}

// SignIn checks credentials and issues a session token
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}

	if !security.CheckPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	session, err := s.tokens.Issue(models.Identity{ID: account.IdentityID, Email: account.Email})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// CurrentUser returns the identity attached to ctx by WithIdentity
func (s *AuthService) CurrentUser(ctx context.Context) (*models.Identity, error) {
	identity, ok := IdentityFrom(ctx)
	if !ok {
		return nil, nil
	}
	return identity, nil
}

// Authenticate resolves a session token to its identity. The account must
// still exist.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	identity, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}

	account, err := s.accountRepo.GetByIdentityID(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrNotAuthenticated
	}

	return identity, nil
}
