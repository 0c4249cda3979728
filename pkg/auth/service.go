// Package auth implements password login, opaque bearer tokens, role
// guards, and the admin account lifecycle. Tokens are high-entropy secrets
// known only to the client; the database holds sha256 hashes.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
)

// DefaultTokenTTL is the token lifetime applied when Config.TokenTTL is zero.
const DefaultTokenTTL = 30 * 24 * time.Hour

// Bootstrap outcomes.
const (
	BootstrapCreated           = "CREATED"
	BootstrapSkippedExisting   = "SKIPPED_EXISTING_USERS"
	BootstrapSkippedNoCreds    = "SKIPPED_NO_CREDENTIALS"
	BootstrapSkippedConcurrent = "SKIPPED_CONCURRENT_INSERT"
)

// Users is the user store surface the service needs.
type Users interface {
	Create(ctx context.Context, user models.User) (*models.User, error)
	Get(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Count(ctx context.Context) (int, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	SetAccountStatus(ctx context.Context, userID string, status models.AccountStatus) error
}

// Tokens is the token store surface the service needs.
type Tokens interface {
	Insert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.AuthToken, error)
	GetActiveByHash(ctx context.Context, tokenHash string) (*models.AuthToken, error)
	TouchLastUsed(ctx context.Context, tokenID int64) error
	RevokeActiveForUser(ctx context.Context, userID string) (int64, error)
}

// Journal is the auth journal surface the service needs.
type Journal interface {
	AppendAuthEvent(ctx context.Context, event models.AuthEvent) error
}

// Config tunes the auth service.
type Config struct {
	TokenTTL time.Duration
}

// Service implements login, token verification, and account lifecycle.
type Service struct {
	users    Users
	tokens   Tokens
	journal  Journal
	hasher   PasswordHasher
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewService creates the auth service.
func NewService(users Users, tokens Tokens, journal Journal, hasher PasswordHasher, cfg Config) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		journal:  journal,
		hasher:   hasher,
		tokenTTL: ttl,
		logger:   slog.Default().With("component", "auth"),
	}
}

// HashToken returns the hex sha256 of a client-held token secret.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newTokenSecret returns a fresh high-entropy token secret.
func newTokenSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// BearerToken extracts the token from an Authorization header. An absent
// header is MissingAuthToken; anything but a well-formed Bearer value is
// InvalidAuthToken.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidAuthToken
	}
	return strings.TrimSpace(token), nil
}

// Login verifies credentials and issues a fresh token. The returned string
// is the client-held secret; it is never persisted.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.appendEvent(ctx, nil, nil, models.AuthEventLoginFailed,
				map[string]string{"email": strings.ToLower(email), "reason": "unknown_email"})
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("loading user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.appendEvent(ctx, &user.ID, nil, models.AuthEventLoginFailed,
			map[string]string{"reason": "bad_password"})
		return "", nil, ErrInvalidCredentials
	}
	if user.AccountStatus != models.AccountActive {
		s.appendEvent(ctx, &user.ID, nil, models.AuthEventLoginFailed,
			map[string]string{"reason": "account_" + string(user.AccountStatus)})
		return "", nil, ErrAccountNotActive
	}

	secret, err := newTokenSecret()
	if err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Insert(ctx, user.ID, HashToken(secret), time.Now().Add(s.tokenTTL))
	if err != nil {
		return "", nil, fmt.Errorf("persisting token: %w", err)
	}

	s.appendEvent(ctx, &user.ID, &user.ID, models.AuthEventLoginSucceeded, nil)
	s.appendEvent(ctx, &user.ID, &user.ID, models.AuthEventTokenIssued,
		map[string]any{"token_id": token.ID, "expires_at": token.ExpiresAt})
	return secret, user, nil
}

// Authenticate resolves an Authorization header to an active user. Unknown,
// expired, and revoked tokens are indistinguishable from malformed ones.
func (s *Service) Authenticate(ctx context.Context, authorizationHeader string) (*models.User, error) {
	secret, err := BearerToken(authorizationHeader)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GetActiveByHash(ctx, HashToken(secret))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidAuthToken
		}
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	user, err := s.users.Get(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidAuthToken
		}
		return nil, fmt.Errorf("loading token user: %w", err)
	}
	if user.AccountStatus != models.AccountActive {
		return nil, ErrInvalidAuthToken
	}

	if err := s.tokens.TouchLastUsed(ctx, token.ID); err != nil {
		s.logger.Warn("Touching token last_used failed", "token_id", token.ID, "error", err)
	}
	return user, nil
}

// RequireAdmin accepts only the admin role.
func RequireAdmin(user *models.User) error {
	if user.Role != models.RoleAdmin {
		return ErrRoleNotAuthorized
	}
	return nil
}

// RequireAuditRead accepts admin and reader roles.
func RequireAuditRead(user *models.User) error {
	switch user.Role {
	case models.RoleAdmin, models.RoleReader:
		return nil
	default:
		return ErrRoleNotAuthorized
	}
}

// BootstrapAdmin inserts the configured admin account when the users table
// is empty. The email unique index arbitrates concurrent bootstrappers: the
// loser reports BootstrapSkippedConcurrent.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return BootstrapSkippedNoCreds, nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return BootstrapSkippedExisting, nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing bootstrap password: %w", err)
	}
	user, err := s.users.Create(ctx, models.User{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  hash,
		Role:          models.RoleAdmin,
		AccountStatus: models.AccountActive,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return BootstrapSkippedConcurrent, nil
		}
		return "", fmt.Errorf("creating bootstrap admin: %w", err)
	}

	s.appendEvent(ctx, &user.ID, nil, models.AuthEventAdminBootstrap,
		map[string]string{"email": user.Email})
	s.logger.Info("Bootstrap admin created", "email", user.Email)
	return BootstrapCreated, nil
}

// BlockUser blocks a target account and revokes its tokens.
func (s *Service) BlockUser(ctx context.Context, actorUserID, targetUserID string) error {
	return s.setAccountStatus(ctx, actorUserID, targetUserID,
		models.AccountBlocked, models.AuthEventAccountBlocked)
}

// RemoveUser removes a target account and revokes its tokens. The row is
// kept for audit; only the status changes.
func (s *Service) RemoveUser(ctx context.Context, actorUserID, targetUserID string) error {
	return s.setAccountStatus(ctx, actorUserID, targetUserID,
		models.AccountRemoved, models.AuthEventAccountRemoved)
}

func (s *Service) setAccountStatus(ctx context.Context, actorUserID, targetUserID string, status models.AccountStatus, eventType string) error {
	if actorUserID == targetUserID {
		return ErrSelfUserManagement
	}

	target, err := s.users.Get(ctx, targetUserID)
	if err != nil {
		return err
	}

	// The system must always retain one active admin.
	if target.Role == models.RoleAdmin && target.AccountStatus == models.AccountActive {
		admins, err := s.users.CountActiveAdmins(ctx)
		if err != nil {
			return fmt.Errorf("counting active admins: %w", err)
		}
		if admins <= 1 {
			return ErrLastActiveAdmin
		}
	}

	if err := s.users.SetAccountStatus(ctx, targetUserID, status); err != nil {
		return err
	}
	revoked, err := s.tokens.RevokeActiveForUser(ctx, targetUserID)
	if err != nil {
		return fmt.Errorf("revoking tokens for %s: %w", targetUserID, err)
	}

	s.appendEvent(ctx, &targetUserID, &actorUserID, eventType, nil)
	if revoked > 0 {
		s.appendEvent(ctx, &targetUserID, &actorUserID, models.AuthEventTokensRevoked,
			map[string]int64{"count": revoked})
	}
	return nil
}

// appendEvent writes an auth journal entry. Journal failures are logged,
// not surfaced: audit must not break the auth path itself.
func (s *Service) appendEvent(ctx context.Context, userID, actorUserID *string, eventType string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	err := s.journal.AppendAuthEvent(ctx, models.AuthEvent{
		UserID:      userID,
		ActorUserID: actorUserID,
		EventType:   eventType,
		Payload:     raw,
	})
	if err != nil {
		s.logger.Error("Appending auth event failed", "event_type", eventType, "error", err)
	}
}
