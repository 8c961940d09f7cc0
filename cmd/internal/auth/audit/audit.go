// Package audit persists session events. Sinks are best-effort: a failed
// write is logged and never reaches the caller.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tekauth/cmd/identity/ids"
	"tekauth/cmd/internal/auth/session"
)

// Execer is the subset of *pgxpool.Pool the Postgres sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes events to <schema>.audit_log.
type PostgresSink struct {
	db      Execer
	table   string
	log     *slog.Logger
	timeout time.Duration
}

// NewPostgresSink returns a sink writing to schema.audit_log. The schema is
// quoted, not validated; callers pass a name already accepted by the
// identity directory.
func NewPostgresSink(db Execer, schema string, log *slog.Logger) *PostgresSink {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresSink{
		db:      db,
		table:   pgx.Identifier{schema, "audit_log"}.Sanitize(),
		log:     log,
		timeout: 2 * time.Second,
	}
}

// Record implements session.Auditor.
func (s *PostgresSink) Record(ctx context.Context, ev session.Event) {
	if s == nil || s.db == nil || strings.TrimSpace(ev.Type) == "" {
		return
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	id, err := ids.NewULID(at)
	if err != nil {
		s.log.ErrorContext(ctx, "audit.insert.fail", "err", err, "action", ev.Type)
		return
	}

	// The request may already be cancelled (logout on disconnect); the audit
	// row should still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err = s.db.Exec(ctx, `
		INSERT INTO `+s.table+` (
			id, action, user_id, token_id, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`, id, ev.Type, nilIfEmpty(ev.UserID), nilIfEmpty(ev.TokenID), at,
		nilIfEmpty(ev.IP), nilIfEmpty(ev.UserAgent), meta(ev))
	if err != nil {
		s.log.ErrorContext(ctx, "audit.insert.fail", "err", err, "action", ev.Type)
	}
}

func meta(ev session.Event) *string {
	m := map[string]any{}
	if ev.PreviousTokenID != "" {
		m["previous_token_id"] = ev.PreviousTokenID
	}
	if ev.Reason != "" {
		m["reason"] = ev.Reason
	}
	if ev.Count > 0 {
		m["count"] = ev.Count
	}
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func nilIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

// LogSink writes events to a structured logger.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a sink logging at info level, or warn for reuse.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

// Record implements session.Auditor.
func (s *LogSink) Record(ctx context.Context, ev session.Event) {
	level := slog.LevelInfo
	if ev.Type == session.EventReuseDetected {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{slog.String("user_id", ev.UserID)}
	if ev.TokenID != "" {
		attrs = append(attrs, slog.String("token_id", ev.TokenID))
	}
	if ev.PreviousTokenID != "" {
		attrs = append(attrs, slog.String("previous_token_id", ev.PreviousTokenID))
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", ev.Reason))
	}
	if ev.Count > 0 {
		attrs = append(attrs, slog.Int("count", ev.Count))
	}
	if ev.IP != "" {
		attrs = append(attrs, slog.String("ip", ev.IP))
	}
	s.log.LogAttrs(ctx, level, "audit."+ev.Type, attrs...)
}

// Multi fans an event out to every sink in order.
type Multi []session.Auditor

// Record implements session.Auditor.
func (m Multi) Record(ctx context.Context, ev session.Event) {
	for _, a := range m {
		if a != nil {
			a.Record(ctx, ev)
		}
	}
}

// TableDDL returns the audit_log DDL for schema, for tests and bootstrap tooling.
func TableDDL(schema string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  action TEXT NOT NULL,
  user_id TEXT NULL,
  token_id TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  ip TEXT NULL,
  user_agent TEXT NULL,
  meta JSONB NULL
);`, pgx.Identifier{schema, "audit_log"}.Sanitize())
}
