package session

import (
	"errors"
	"time"
)

// Token type markers carried in the "type" claim.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var errEmptySubject = errors.New("session: empty subject")

// UserClaims is the identity snapshot embedded into an access token.
type UserClaims struct {
	UserID   string
	Email    string
	FullName string
	Role     string
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID    string
	Email     string
	FullName  string
	Role      string
	TokenID   string
	Issuer    string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims is the verified content of a refresh token.
// TokenID is the primary key of the server-side session record.
type RefreshClaims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec signs and verifies access and refresh tokens.
//
// Verification errors always wrap ErrInvalidToken together with one of the
// detail sentinels (ErrTokenExpired, ErrBadSignature, ...). Implementations
// are stateless and safe for concurrent use.
type TokenCodec interface {
	IssueAccess(u UserClaims, now time.Time) (token, tokenID string, exp time.Time, err error)
	IssueRefresh(userID string, now time.Time) (token, tokenID string, exp time.Time, err error)
	VerifyAccess(token string, now time.Time) (AccessClaims, error)
	VerifyRefresh(token string, now time.Time) (RefreshClaims, error)
}

// NewCodec builds the TokenCodec selected by cfg.TokenFormat.
func NewCodec(cfg Config) (TokenCodec, error) {
	switch cfg.TokenFormat {
	case FormatJWT:
		return NewJWTCodec(cfg)
	case FormatPaseto:
		return NewPasetoCodec(cfg)
	default:
		return nil, ErrConfig
	}
}

// checkTimes applies exp/nbf rules with the configured skew.
func checkTimes(now, exp, nbf time.Time, skew time.Duration) error {
	if exp.IsZero() {
		return invalidToken(ErrMalformedToken)
	}
	if !now.Before(exp.Add(skew)) {
		return invalidToken(ErrTokenExpired)
	}
	if !nbf.IsZero() && now.Add(skew).Before(nbf) {
		return invalidToken(ErrTokenNotYetValid)
	}
	return nil
}
