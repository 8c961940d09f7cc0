package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tekauth/cmd/security/password"
)

// dummyPassword is hashed once so unknown emails cost as much as wrong passwords.
const dummyPassword = "tekauth-timing-equalizer"

// Authenticator checks email and password pairs against a Directory.
type Authenticator struct {
	dir       Directory
	passwords password.Config
	dummyHash string
	log       *slog.Logger
	throttle  *LoginThrottle
	now       func() time.Time
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithLoginThrottle limits failed attempts per (email, ip).
func WithLoginThrottle(t *LoginThrottle) AuthOption {
	return func(a *Authenticator) { a.throttle = t }
}

// NewAuthenticator builds an Authenticator. log may be nil.
func NewAuthenticator(dir Directory, cfg password.Config, log *slog.Logger, opts ...AuthOption) (*Authenticator, error) {
	if dir == nil {
		return nil, errors.New("identity: nil directory")
	}
	if log == nil {
		log = slog.Default()
	}

	// The dummy hash bypasses policy so a strict deployment policy cannot reject it.
	relaxed := cfg
	relaxed.Policy = password.Policy{MinLength: 1, MaxLength: len(dummyPassword)}
	dummy, err := relaxed.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}

	a := &Authenticator{dir: dir, passwords: cfg, dummyHash: dummy, log: log, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate returns the user owning email when plain is their password.
//
// Unknown email and wrong password both yield ErrInvalidCredentials. A ban is
// reported as ErrBanned only after the password has been proven, so bans do
// not leak to callers who do not know the password.
func (a *Authenticator) Authenticate(ctx context.Context, email, plain string) (User, error) {
	return a.AuthenticateFrom(ctx, email, plain, "")
}

// AuthenticateFrom is Authenticate for a client at ip. With a LoginThrottle
// configured, every attempt reserves a slot in the key's failure budget
// before any password work, so parallel guesses cannot overrun it. A key over
// budget gets ErrThrottled.
func (a *Authenticator) AuthenticateFrom(ctx context.Context, email, plain, ip string) (User, error) {
	if a.throttle == nil {
		return a.authenticate(ctx, email, plain)
	}

	key := ThrottleKey(email, ip)
	at := a.now()
	if !a.throttle.Reserve(key, at) {
		a.log.WarnContext(ctx, "identity.login_throttled", "ip", ip)
		return User{}, OpError{Op: "identity.Authenticate", Kind: ErrThrottled}
	}

	u, err := a.authenticate(ctx, email, plain)
	switch {
	case err == nil:
		a.throttle.Reset(key)
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrBanned):
		// The reservation stands as the recorded failure.
	default:
		a.throttle.Release(key, at)
	}
	return u, err
}

func (a *Authenticator) authenticate(ctx context.Context, email, plain string) (User, error) {
	const op = "identity.Authenticate"

	u, err := a.dir.GetUserByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			return User{}, err
		}
		_, _ = a.passwords.Verify(a.dummyHash, plain)
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	ok, err := a.passwords.Verify(u.PasswordHash, plain)
	if err != nil {
		a.log.WarnContext(ctx, "identity.password_hash_unusable", "user_id", u.ID, "err", err)
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	if u.IsBanned {
		return User{}, OpError{Op: op, Kind: ErrBanned}
	}

	a.maybeRehash(ctx, &u, plain)
	return u, nil
}

// maybeRehash upgrades legacy or under-cost hashes after a successful login.
// Failures are logged and never fail the login.
func (a *Authenticator) maybeRehash(ctx context.Context, u *User, plain string) {
	if !a.passwords.NeedsRehash(u.PasswordHash) {
		return
	}

	// Existing passwords predate the current policy; only the hash is upgraded.
	relaxed := a.passwords
	relaxed.Policy.MinLength = 1
	relaxed.Policy.RejectVeryWeak = false
	if relaxed.Policy.MaxLength < len(plain) {
		relaxed.Policy.MaxLength = len(plain)
	}

	enc, err := relaxed.Hash(plain)
	if err != nil {
		a.log.WarnContext(ctx, "identity.rehash_failed", "user_id", u.ID, "err", err)
		return
	}
	if err := a.dir.UpdatePasswordHash(ctx, u.ID, enc); err != nil {
		a.log.WarnContext(ctx, "identity.rehash_failed", "user_id", u.ID, "err", err)
		return
	}
	u.PasswordHash = enc
	a.log.InfoContext(ctx, "identity.password_rehashed", "user_id", u.ID)
}
