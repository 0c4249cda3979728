package models

import (
	"encoding/json"
	"time"
)

// Role is the authorization role of a user.
type Role string

// AccountStatus is the lifecycle state of a user account.
type AccountStatus string

const (
	RoleAdmin  Role = "admin"
	RoleReader Role = "reader"

	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
	AccountRemoved AccountStatus = "removed"
)

// User is a dashboard user. Email is stored lowercased and unique.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          Role
	AccountStatus AccountStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuthToken is a persisted opaque bearer token. Only the sha256 of the
// client-held secret is stored. Active iff revoked_at is null and
// expires_at is in the future.
type AuthToken struct {
	ID         int64
	UserID     string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

// Active reports whether the token is usable at the given instant.
func (t *AuthToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// AuthEvent is one append-only auth journal entry.
type AuthEvent struct {
	ID          int64
	UserID      *string
	ActorUserID *string
	EventType   string
	Payload     json.RawMessage
	CapturedAt  time.Time
}

// Auth event type tags.
const (
	AuthEventLoginSucceeded = "LOGIN_SUCCEEDED"
	AuthEventLoginFailed    = "LOGIN_FAILED"
	AuthEventTokenIssued    = "TOKEN_ISSUED"
	AuthEventTokensRevoked  = "TOKENS_REVOKED"
	AuthEventAdminBootstrap = "ADMIN_BOOTSTRAPPED"
	AuthEventAccountBlocked = "ACCOUNT_BLOCKED"
	AuthEventAccountRemoved = "ACCOUNT_REMOVED"
)

// PromptTemplate is a versioned prompt row; at most one active row per name.
type PromptTemplate struct {
	ID       int64
	Name     string
	Version  int
	Content  string
	IsActive bool
}
