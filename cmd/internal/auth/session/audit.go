package session

import (
	"context"
	"time"
)

// Audit event types.
const (
	EventCreated       = "session.created"
	EventRotated       = "session.rotated"
	EventRevoked       = "session.revoked"
	EventRevokedAll    = "session.revoked_all"
	EventReuseDetected = "session.reuse_detected"
	EventRefreshDenied = "session.refresh_denied"
)

// Event is a security-relevant session transition. It never carries tokens.
type Event struct {
	Type    string
	UserID  string
	TokenID string

	// PreviousTokenID is set on rotation.
	PreviousTokenID string

	// Reason explains denials and forced revocations.
	Reason string

	// Count is the number of sessions affected by a bulk revocation.
	Count int

	IP        string
	UserAgent string
	At        time.Time
}

// Auditor receives session events. Record must not block for long and its
// failures never change the outcome of the operation being audited.
type Auditor interface {
	Record(ctx context.Context, ev Event)
}

// NopAuditor discards every event.
type NopAuditor struct{}

// Record implements Auditor.
func (NopAuditor) Record(context.Context, Event) {}
