package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"type"`
}

type jwtCodec struct {
	issuer   string
	audience string

	accessTTL  time.Duration
	refreshTTL time.Duration
	clockSkew  time.Duration
	idBytes    int

	accessKey  []byte
	refreshKey []byte
}

// NewJWTCodec builds a TokenCodec producing HS256 JWTs.
//
// Access and refresh tokens are signed with different secrets, so a token of
// one kind never verifies as the other.
func NewJWTCodec(cfg Config) (TokenCodec, error) {
	if len(cfg.AccessSecret) < minSecretBytes || len(cfg.RefreshSecret) < minSecretBytes {
		return nil, ErrConfig
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, ErrConfig
	}
	return &jwtCodec{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		clockSkew:  cfg.ClockSkew,
		idBytes:    cfg.TokenIDBytes,
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
	}, nil
}

func (c *jwtCodec) registered(subject, jti string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{c.audience},
		ExpiresAt: jwt.NewNumericDate(exp),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        jti,
	}
}

func (c *jwtCodec) IssueAccess(u UserClaims, now time.Time) (string, string, time.Time, error) {
	if u.UserID == "" {
		return "", "", time.Time{}, errEmptySubject
	}
	jti, err := newTokenID(c.idBytes)
	if err != nil {
		return "", "", time.Time{}, err
	}
	exp := now.Add(c.accessTTL)

	claims := jwtClaims{
		RegisteredClaims: c.registered(u.UserID, jti, now, exp),
		Email:            u.Email,
		Name:             u.FullName,
		Role:             u.Role,
		Type:             tokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

func (c *jwtCodec) IssueRefresh(userID string, now time.Time) (string, string, time.Time, error) {
	if userID == "" {
		return "", "", time.Time{}, errEmptySubject
	}
	jti, err := newTokenID(c.idBytes)
	if err != nil {
		return "", "", time.Time{}, err
	}
	exp := now.Add(c.refreshTTL)

	claims := jwtClaims{
		RegisteredClaims: c.registered(userID, jti, now, exp),
		Type:             tokenTypeRefresh,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

func (c *jwtCodec) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	claims, err := c.parse(token, c.accessKey, tokenTypeAccess, now)
	if err != nil {
		return AccessClaims{}, err
	}
	return AccessClaims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		FullName:  claims.Name,
		Role:      claims.Role,
		TokenID:   claims.ID,
		Issuer:    claims.Issuer,
		Audience:  c.audience,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

func (c *jwtCodec) VerifyRefresh(token string, now time.Time) (RefreshClaims, error) {
	claims, err := c.parse(token, c.refreshKey, tokenTypeRefresh, now)
	if err != nil {
		return RefreshClaims{}, err
	}
	return RefreshClaims{
		UserID:    claims.Subject,
		TokenID:   claims.ID,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

func (c *jwtCodec) parse(token string, key []byte, wantType string, now time.Time) (*jwtClaims, error) {
	// A fresh parser per call keeps the time source bound to this verification.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &jwtClaims{}
	if _, err := p.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return nil, mapJWTError(err)
	}

	if claims.Type != wantType {
		return nil, invalidToken(ErrWrongTokenType)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, invalidToken(ErrMalformedToken)
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return invalidToken(ErrBadSignature)
	case errors.Is(err, jwt.ErrTokenExpired):
		return invalidToken(ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return invalidToken(ErrTokenNotYetValid)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return invalidToken(ErrIssuerMismatch)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return invalidToken(ErrAudienceMismatch)
	default:
		return invalidToken(ErrMalformedToken)
	}
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
