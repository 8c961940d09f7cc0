package session

import (
	"context"
	"strings"
	"time"
)

const (
	unknownMeta       = "unknown"
	maxUserAgentBytes = 512
	maxIPBytes        = 64
)

// Metadata is best-effort client information captured at login or refresh.
// Values come from request headers and must not be trusted.
type Metadata struct {
	UserAgent string
	IP        string
}

func (m Metadata) normalized() Metadata {
	return Metadata{
		UserAgent: clip(m.UserAgent, maxUserAgentBytes),
		IP:        clip(m.IP, maxIPBytes),
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknownMeta
	}
	if len(s) > n {
		s = s[:n]
	}
	return s
}

// Record is the server-side state of one refresh token.
// TokenHash is the only representation of the refresh token ever stored.
type Record struct {
	UserID    string
	TokenID   string
	TokenHash string
	CreatedAt time.Time
	UserAgent string
	IP        string
}

// SessionInfo is the client-safe view of a Record.
type SessionInfo struct {
	TokenID   string    `json:"tokenId"`
	CreatedAt time.Time `json:"createdAt"`
	UserAgent string    `json:"userAgent"`
	IP        string    `json:"ip"`
}

func (r Record) info() SessionInfo {
	return SessionInfo{
		TokenID:   r.TokenID,
		CreatedAt: r.CreatedAt,
		UserAgent: r.UserAgent,
		IP:        r.IP,
	}
}

// Replacement describes the session that takes over on rotation.
type Replacement struct {
	TokenID      string
	RefreshToken string
	Meta         Metadata
	TTL          time.Duration
}

// Registry abstracts the server-side session store.
//
// Implementations wrap infrastructure failures in ErrStoreUnavailable and
// report every rejected session as ErrSessionInvalid (usually a *SessionError
// carrying the reason).
type Registry interface {
	// Create stores a session for (userID, tokenID), overwriting any previous one.
	Create(ctx context.Context, userID, tokenID, refreshToken string, meta Metadata, ttl time.Duration) (Record, error)

	// Validate loads the session and compares the presented token against the
	// stored hash. A mismatch, or a token that was already rotated out, revokes
	// every session of the user.
	Validate(ctx context.Context, userID, tokenID, presented string) (Record, error)

	// Rotate atomically consumes the old session (only if the presented token
	// still matches) and then creates the replacement.
	Rotate(ctx context.Context, userID, oldTokenID, presented string, next Replacement) (Record, error)

	// Revoke removes a single session. Revoking a missing session is not an error.
	Revoke(ctx context.Context, userID, tokenID string) error

	// RevokeAll removes every session of the user and reports how many existed.
	RevokeAll(ctx context.Context, userID string) (int, error)

	// List returns the live sessions of the user, oldest first.
	List(ctx context.Context, userID string) ([]SessionInfo, error)
}
