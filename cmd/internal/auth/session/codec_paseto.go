package session

import (
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const (
	pasetoPublicHeader = "v4.public."
	pasetoLocalHeader  = "v4.local."
)

type pasetoCodec struct {
	issuer   string
	audience string

	accessTTL  time.Duration
	refreshTTL time.Duration
	clockSkew  time.Duration
	idBytes    int

	// Access tokens are signed (v4.public) so resource servers can verify
	// them with the public key alone. Refresh tokens are encrypted (v4.local)
	// and only ever read back by this service.
	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
	local  paseto.V4SymmetricKey
}

// NewPasetoCodec builds a TokenCodec based on PASETO v4.
//
// Access tokens use v4.public with an Ed25519 keypair; refresh tokens use
// v4.local. Time claims are checked here rather than by parser rules so that
// clock skew applies symmetrically to exp and nbf.
func NewPasetoCodec(cfg Config) (TokenCodec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	local, err := paseto.V4SymmetricKeyFromHex(cfg.PasetoV4LocalKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoCodec{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		clockSkew:  cfg.ClockSkew,
		idBytes:    cfg.TokenIDBytes,
		secret:     secret,
		public:     secret.Public(),
		local:      local,
	}, nil
}

func (c *pasetoCodec) newToken(subject, jti, typ string, now, exp time.Time) paseto.Token {
	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetAudience(c.audience)
	tok.SetSubject(subject)
	tok.SetJti(jti)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString("type", typ)
	return tok
}

func (c *pasetoCodec) IssueAccess(u UserClaims, now time.Time) (string, string, time.Time, error) {
	if u.UserID == "" {
		return "", "", time.Time{}, errEmptySubject
	}
	jti, err := newTokenID(c.idBytes)
	if err != nil {
		return "", "", time.Time{}, err
	}
	exp := now.Add(c.accessTTL)

	tok := c.newToken(u.UserID, jti, tokenTypeAccess, now, exp)
	tok.SetString("email", u.Email)
	tok.SetString("name", u.FullName)
	tok.SetString("role", u.Role)

	return tok.V4Sign(c.secret, nil), jti, exp, nil
}

func (c *pasetoCodec) IssueRefresh(userID string, now time.Time) (string, string, time.Time, error) {
	if userID == "" {
		return "", "", time.Time{}, errEmptySubject
	}
	jti, err := newTokenID(c.idBytes)
	if err != nil {
		return "", "", time.Time{}, err
	}
	exp := now.Add(c.refreshTTL)

	tok := c.newToken(userID, jti, tokenTypeRefresh, now, exp)
	return tok.V4Encrypt(c.local, nil), jti, exp, nil
}

func (c *pasetoCodec) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	if !strings.HasPrefix(token, pasetoPublicHeader) {
		return AccessClaims{}, headerError(token)
	}

	// No parser rules: every claim check happens in checkClaims.
	p := paseto.MakeParser(nil)
	parsed, err := p.ParseV4Public(c.public, token, nil)
	if err != nil {
		return AccessClaims{}, invalidToken(ErrBadSignature)
	}

	base, err := c.checkClaims(parsed, tokenTypeAccess, now)
	if err != nil {
		return AccessClaims{}, err
	}

	email, _ := parsed.GetString("email")
	name, _ := parsed.GetString("name")
	role, _ := parsed.GetString("role")

	return AccessClaims{
		UserID:    base.UserID,
		Email:     email,
		FullName:  name,
		Role:      role,
		TokenID:   base.TokenID,
		Issuer:    c.issuer,
		Audience:  c.audience,
		IssuedAt:  base.IssuedAt,
		ExpiresAt: base.ExpiresAt,
	}, nil
}

func (c *pasetoCodec) VerifyRefresh(token string, now time.Time) (RefreshClaims, error) {
	if !strings.HasPrefix(token, pasetoLocalHeader) {
		return RefreshClaims{}, headerError(token)
	}

	p := paseto.MakeParser(nil)
	parsed, err := p.ParseV4Local(c.local, token, nil)
	if err != nil {
		// v4.local authenticates the ciphertext; a wrong key and a forged
		// payload are indistinguishable.
		return RefreshClaims{}, invalidToken(ErrBadSignature)
	}

	return c.checkClaims(parsed, tokenTypeRefresh, now)
}

func (c *pasetoCodec) checkClaims(parsed *paseto.Token, wantType string, now time.Time) (RefreshClaims, error) {
	typ, err := parsed.GetString("type")
	if err != nil {
		return RefreshClaims{}, invalidToken(ErrMalformedToken)
	}
	if typ != wantType {
		return RefreshClaims{}, invalidToken(ErrWrongTokenType)
	}

	exp, err := parsed.GetExpiration()
	if err != nil {
		return RefreshClaims{}, invalidToken(ErrMalformedToken)
	}
	nbf, _ := parsed.GetNotBefore()
	iat, _ := parsed.GetIssuedAt()
	if err := checkTimes(now, exp, nbf, c.clockSkew); err != nil {
		return RefreshClaims{}, err
	}

	if iss, _ := parsed.GetIssuer(); iss != c.issuer {
		return RefreshClaims{}, invalidToken(ErrIssuerMismatch)
	}
	if aud, _ := parsed.GetAudience(); aud != c.audience {
		return RefreshClaims{}, invalidToken(ErrAudienceMismatch)
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return RefreshClaims{}, invalidToken(ErrMalformedToken)
	}
	jti, err := parsed.GetJti()
	if err != nil || jti == "" {
		return RefreshClaims{}, invalidToken(ErrMalformedToken)
	}

	return RefreshClaims{UserID: sub, TokenID: jti, IssuedAt: iat, ExpiresAt: exp}, nil
}

// headerError distinguishes a PASETO token of the other purpose from garbage.
func headerError(token string) error {
	if strings.HasPrefix(token, pasetoPublicHeader) || strings.HasPrefix(token, pasetoLocalHeader) {
		return invalidToken(ErrWrongTokenType)
	}
	return invalidToken(ErrMalformedToken)
}
