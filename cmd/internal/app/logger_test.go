package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSONRedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info", "json")

	log.Info("session.rotate.ok",
		"user_id", "42",
		"token_id", "tid-1",
		"refresh_token", "eyJhbGciOi.secret.value",
		"jwt_secret", "hunter2",
	)

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if m["refresh_token"] != redacted || m["jwt_secret"] != redacted {
		t.Fatalf("expected redaction, got %v", m)
	}
	if m["token_id"] != "tid-1" || m["user_id"] != "42" {
		t.Fatalf("non-secret attrs must pass through, got %v", m)
	}
}

func TestNewLogger_PrettyFormat(t *testing.T) {
	t.Setenv("TEKAUTH_LOG_COLOR", "false")

	var buf bytes.Buffer
	log := NewLogger(&buf, "debug", "pretty").With("component", "session")

	log.WithGroup("req").Debug("http.request", "path", "/readyz", "password", "p@ss word")

	line := buf.String()
	for _, want := range []string{"[DEBUG]", "http.request", "component=session", "req.path=/readyz", "req.password=" + redacted} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected ANSI codes with color disabled: %q", line)
	}
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "pretty")

	log.Info("dropped")
	log.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "[WARN]") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	cases := map[string]string{
		"":        `""`,
		"plain":   "plain",
		"a b":     `"a b"`,
		"k=v":     `"k=v"`,
		`say "x"`: `"say \"x\""`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want %q", in, got, want)
		}
	}
}
