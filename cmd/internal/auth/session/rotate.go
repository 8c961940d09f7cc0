package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// maxTokenBytes bounds presented tokens before any parsing.
const maxTokenBytes = 4096

// Refresh rotates a refresh token.
//
// Flow:
//   - Verify the token (signature, type, issuer, audience, expiry).
//   - Validate it against the stored session. A token that was already
//     rotated out, or whose hash does not match, revokes every session of
//     the user (theft response).
//   - Re-read the user: banned revokes everything, deleted revokes this
//     session.
//   - Consume the old session and register the new one. Exactly one of
//     several concurrent refreshes of the same token can succeed.
//
// Every failure denies; nothing is issued unless the store accepted the
// rotation.
func (s *Service) Refresh(ctx context.Context, presented string, meta Metadata) (out Issued, err error) {
	defer func() { s.metrics.refresh(outcome(err)) }()

	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Issued{}, ErrMissingToken
	}
	if len(presented) > maxTokenBytes {
		return Issued{}, invalidToken(ErrMalformedToken)
	}

	now := s.now()
	claims, err := s.codec.VerifyRefresh(presented, now)
	if err != nil {
		s.log.Debug("session.refresh.token_invalid", "err", err)
		return Issued{}, err
	}

	prev, err := s.registry.Validate(ctx, claims.UserID, claims.TokenID, presented)
	if err != nil {
		return Issued{}, s.deny(ctx, claims, meta, now, err)
	}

	user, err := s.currentUser(ctx, claims.UserID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		if rerr := s.registry.Revoke(ctx, claims.UserID, claims.TokenID); rerr != nil {
			s.log.Warn("session.refresh.revoke.fail", "err", rerr, "user_id", claims.UserID)
		}
		s.deny(ctx, claims, meta, now, err)
		return Issued{}, ErrUserNotFound
	case err != nil:
		return Issued{}, err
	case user.IsBanned:
		n, rerr := s.registry.RevokeAll(ctx, claims.UserID)
		if rerr != nil {
			s.log.Error("session.refresh.revoke_all.fail", "err", rerr, "user_id", claims.UserID)
		}
		s.metrics.revoked("suspended", n)
		s.deny(ctx, claims, meta, now, ErrAccountSuspended)
		return Issued{}, ErrAccountSuspended
	}

	pair, err := s.issuePair(user, now)
	if err != nil {
		s.log.Error("session.refresh.issue.fail", "err", err, "user_id", user.ID)
		return Issued{}, err
	}

	if _, err := s.registry.Rotate(ctx, claims.UserID, claims.TokenID, presented, Replacement{
		TokenID:      pair.TokenID,
		RefreshToken: pair.RefreshToken,
		Meta:         meta,
		TTL:          pair.RefreshExpiresAt.Sub(now),
	}); err != nil {
		return Issued{}, s.deny(ctx, claims, meta, now, err)
	}

	s.log.Info("session.rotate.ok",
		"user_id", claims.UserID,
		"token_id", pair.TokenID,
		"previous_token_id", claims.TokenID,
		"session_age", now.Sub(prev.CreatedAt).Round(time.Second),
	)
	s.audit.Record(ctx, Event{
		Type:            EventRotated,
		UserID:          claims.UserID,
		TokenID:         pair.TokenID,
		PreviousTokenID: claims.TokenID,
		IP:              meta.normalized().IP,
		UserAgent:       meta.normalized().UserAgent,
		At:              now,
	})
	return pair, nil
}

// deny records a refused refresh. Session rejections come back as the bare
// ErrSessionInvalid so the sub-reason stays in logs, metrics and audit; other
// errors are returned unchanged.
func (s *Service) deny(ctx context.Context, claims RefreshClaims, meta Metadata, now time.Time, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		s.log.Error("session.refresh.store.fail", "err", err, "user_id", claims.UserID)
		return err
	}

	meta = meta.normalized()
	ev := Event{
		Type:      EventRefreshDenied,
		UserID:    claims.UserID,
		TokenID:   claims.TokenID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		At:        now,
	}

	reason, revoked := sessionReason(err)
	switch reason {
	case ReasonReuse, ReasonHashMismatch:
		s.metrics.reuseDetected()
		s.metrics.revoked("reuse", revoked)
		s.log.Warn("session.reuse_detected",
			"user_id", claims.UserID,
			"token_id", claims.TokenID,
			"reason", reason,
			"revoked", revoked,
			"ip", meta.IP,
		)
		ev.Type = EventReuseDetected
		ev.Reason = reason
		ev.Count = revoked
	case "":
		ev.Reason = PublicCode(err)
		s.log.Info("session.refresh.denied", "user_id", claims.UserID, "reason", ev.Reason)
	default:
		ev.Reason = reason
		s.log.Info("session.refresh.denied", "user_id", claims.UserID, "reason", reason)
	}

	s.audit.Record(ctx, ev)
	if reason != "" {
		return ErrSessionInvalid
	}
	return err
}
