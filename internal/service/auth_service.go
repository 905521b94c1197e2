package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
)

// CredentialVerifier checks a plaintext password against a stored hash.
type CredentialVerifier interface {
	Compare(hashed, plain string) error
}

// AuthService coordinates local login flows.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	verifier CredentialVerifier
	tokenMgr *auth.TokenManager
	logger   *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	SessionRepo repository.SessionRepository
	Verifier    CredentialVerifier
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = auth.NewPasswordHasher(cfg.BcryptCost)
	}
	return &AuthService{
		users:    deps.UserRepo,
		sessions: deps.SessionRepo,
		verifier: verifier,
		tokenMgr: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		logger:   logger,
	}
}

// Login authenticates by username, or by email when identifier contains '@',
// and opens a session.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*domain.User, *domain.Token, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	filter := repository.UserFilter{Username: identifier}
	if strings.Contains(identifier, "@") {
		filter = repository.UserFilter{Email: identifier}
	}

	user, err := s.users.FindOne(ctx, filter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	cred, err := s.users.GetCredential(ctx, user.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if err := s.verifier.Compare(cred.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.tokenMgr.TTL()),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	value, exp, err := s.tokenMgr.GenerateToken(user.ID, session.ID, user.Role)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return user, &domain.Token{Value: value, SessionID: session.ID, ExpiresAt: exp}, nil
}

// Logout ends every session of the user.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	_, err := s.sessions.DeleteByUser(ctx, userID)
	return err
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
