package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Service implements the session lifecycle: login, refresh rotation with
// reuse detection, per-session and per-user logout, and session listing.
//
// It owns no state; sessions live in the Registry and user state is read
// fresh through UserLookup on every login and refresh.
type Service struct {
	cfg      Config
	codec    TokenCodec
	registry Registry
	users    UserLookup

	log     *slog.Logger
	metrics *Metrics
	audit   Auditor
	now     func() time.Time
}

// Issued is the result of a login or a refresh.
type Issued struct {
	UserID           string
	TokenID          string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithLogger sets the logger. Tokens are never logged.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditor overrides the default no-op auditor.
func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithClock overrides time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service from its collaborators.
func NewService(cfg Config, codec TokenCodec, registry Registry, users UserLookup, opts ...Option) (*Service, error) {
	if codec == nil || registry == nil || users == nil {
		return nil, errors.New("session: nil codec, registry or user lookup")
	}
	if cfg.RefreshTokenTTL <= 0 {
		return nil, ErrConfig
	}

	s := &Service{
		cfg:      cfg,
		codec:    codec,
		registry: registry,
		users:    users,
		log:      slog.Default(),
		audit:    NopAuditor{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// Login issues a token pair for an already authenticated user and registers
// the session. The user is re-read so that bans take effect immediately.
func (s *Service) Login(ctx context.Context, userID string, meta Metadata) (out Issued, err error) {
	defer func() { s.metrics.login(outcome(err)) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Issued{}, ErrUserNotFound
	}

	user, err := s.currentUser(ctx, userID)
	if err != nil {
		return Issued{}, err
	}
	if user.IsBanned {
		return Issued{}, ErrAccountSuspended
	}

	now := s.now()
	pair, err := s.issuePair(user, now)
	if err != nil {
		s.log.Error("session.login.issue.fail", "err", err, "user_id", userID)
		return Issued{}, err
	}

	if _, err := s.registry.Create(ctx, userID, pair.TokenID, pair.RefreshToken, meta, pair.RefreshExpiresAt.Sub(now)); err != nil {
		s.log.Error("session.login.store.fail", "err", err, "user_id", userID)
		return Issued{}, err
	}

	s.log.Info("session.login.ok", "user_id", userID, "token_id", pair.TokenID)
	s.audit.Record(ctx, Event{
		Type:      EventCreated,
		UserID:    userID,
		TokenID:   pair.TokenID,
		IP:        meta.normalized().IP,
		UserAgent: meta.normalized().UserAgent,
		At:        now,
	})
	return pair, nil
}

// Logout revokes one session. It is best-effort and never fails the caller.
func (s *Service) Logout(ctx context.Context, userID, tokenID string) {
	userID = strings.TrimSpace(userID)
	tokenID = strings.TrimSpace(tokenID)
	if userID == "" || tokenID == "" {
		return
	}

	if err := s.registry.Revoke(ctx, userID, tokenID); err != nil {
		s.log.Warn("session.logout.fail", "err", err, "user_id", userID, "token_id", tokenID)
		return
	}
	s.metrics.revoked("logout", 1)
	s.audit.Record(ctx, Event{
		Type:    EventRevoked,
		UserID:  userID,
		TokenID: tokenID,
		Reason:  "logout",
		At:      s.now(),
	})
}

// LogoutToken revokes the session behind a presented refresh token.
// Tokens that fail verification are ignored.
func (s *Service) LogoutToken(ctx context.Context, presented string) {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > maxTokenBytes {
		return
	}

	claims, err := s.codec.VerifyRefresh(presented, s.now())
	if err != nil {
		s.log.Debug("session.logout.token_invalid", "err", err)
		return
	}
	s.Logout(ctx, claims.UserID, claims.TokenID)
}

// LogoutAll revokes every session of the user and returns how many existed.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, nil
	}

	n, err := s.registry.RevokeAll(ctx, userID)
	if err != nil {
		s.log.Error("session.logout_all.fail", "err", err, "user_id", userID)
		return 0, err
	}

	s.metrics.revoked("logout_all", n)
	s.log.Info("session.logout_all.ok", "user_id", userID, "count", n)
	s.audit.Record(ctx, Event{
		Type:   EventRevokedAll,
		UserID: userID,
		Reason: "logout_all",
		Count:  n,
		At:     s.now(),
	})
	return n, nil
}

// ListSessions returns the user's live sessions, oldest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []SessionInfo{}, nil
	}
	return s.registry.List(ctx, userID)
}

// ValidateAccess verifies an access token. It is stateless: a revoked
// session's access token stays valid until it expires.
func (s *Service) ValidateAccess(accessToken string) (AccessClaims, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return AccessClaims{}, ErrMissingToken
	}
	if len(accessToken) > maxTokenBytes {
		return AccessClaims{}, invalidToken(ErrMalformedToken)
	}
	return s.codec.VerifyAccess(accessToken, s.now())
}

// currentUser reads the user through UserLookup and maps the outcome to
// session errors.
func (s *Service) currentUser(ctx context.Context, userID string) (User, error) {
	user, ok, err := s.users(ctx, userID)
	if err != nil {
		s.log.Error("session.user_lookup.fail", "err", err, "user_id", userID)
		return User{}, storeUnavailable("user_lookup", err)
	}
	if !ok {
		return User{}, ErrUserNotFound
	}
	if user.ID == "" {
		user.ID = userID
	}
	return user, nil
}

func (s *Service) issuePair(user User, now time.Time) (Issued, error) {
	access, _, accessExp, err := s.codec.IssueAccess(user.claims(), now)
	if err != nil {
		return Issued{}, err
	}
	refresh, tokenID, refreshExp, err := s.codec.IssueRefresh(user.ID, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		UserID:           user.ID,
		TokenID:          tokenID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
