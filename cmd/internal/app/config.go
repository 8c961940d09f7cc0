package app

import (
	"fmt"
	"strings"
	"time"

	"tekauth/cmd/identity"
)

// Config contains the runtime configuration loaded from environment variables.
// Session and password settings are loaded by their own packages.
type Config struct {
	Env       string
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	RedisURL string

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// SessionConfigFile is an optional TOML file layered under session env vars.
	SessionConfigFile string

	// AuditSink is one of "log", "postgres" or "both".
	AuditSink string

	// TrustProxy enables X-Forwarded-For when deriving client IPs.
	TrustProxy bool

	// RequireTokenHMAC makes TEKAUTH_TOKEN_HMAC_KEY mandatory.
	RequireTokenHMAC bool

	// Failed logins allowed per (email, ip) within LoginFailureWindow.
	LoginMaxFailures   int
	LoginFailureWindow time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	env := strings.ToLower(EnvString("TEKAUTH_ENV", "development"))
	return Config{
		Env:       env,
		HTTPAddr:  EnvString("TEKAUTH_HTTP_ADDR", "0.0.0.0:9090"),
		LogLevel:  EnvString("TEKAUTH_LOG_LEVEL", "info"),
		LogFormat: EnvString("TEKAUTH_LOG_FORMAT", defaultLogFormat(env)),

		ReadHeaderTimeout: EnvDuration("TEKAUTH_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TEKAUTH_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TEKAUTH_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TEKAUTH_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("TEKAUTH_HTTP_MAX_HEADER_BYTES", 1<<20),

		RedisURL: EnvString("TEKAUTH_REDIS_URL", "redis://localhost:6379/0"),

		DatabaseURL: EnvString("TEKAUTH_DATABASE_URL", ""),
		DBSchema:    EnvString("TEKAUTH_DB_SCHEMA", identity.DefaultSchema),
		DBMaxConns:  EnvInt32("TEKAUTH_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TEKAUTH_DB_MIN_CONNS", 0),

		SessionConfigFile: EnvString("TEKAUTH_SESSION_CONFIG_FILE", ""),
		AuditSink:         strings.ToLower(EnvString("TEKAUTH_AUDIT_SINK", "log")),
		TrustProxy:        EnvBool("TEKAUTH_TRUST_PROXY", false),

		RequireTokenHMAC: EnvBool("TEKAUTH_REQUIRE_TOKEN_HMAC", isProductionEnv(env)),

		LoginMaxFailures:   EnvInt("TEKAUTH_LOGIN_MAX_FAILURES", identity.DefaultLoginMaxFailures),
		LoginFailureWindow: EnvDuration("TEKAUTH_LOGIN_FAILURE_WINDOW", identity.DefaultLoginFailureWindow),
	}
}

// Production reports whether the runtime runs with production defaults.
func (c Config) Production() bool { return isProductionEnv(c.Env) }

func isProductionEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

// Validate rejects combinations that cannot start.
func (c Config) Validate() error {
	switch c.AuditSink {
	case "log", "postgres", "both":
	default:
		return fmt.Errorf("app: TEKAUTH_AUDIT_SINK must be log, postgres or both, got %q", c.AuditSink)
	}
	if c.AuditSink != "log" && c.DatabaseURL == "" {
		return fmt.Errorf("app: TEKAUTH_AUDIT_SINK=%s requires TEKAUTH_DATABASE_URL", c.AuditSink)
	}
	if !identity.ValidSchemaName(c.DBSchema) {
		return fmt.Errorf("app: invalid TEKAUTH_DB_SCHEMA %q", c.DBSchema)
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("app: TEKAUTH_REDIS_URL is required")
	}
	if c.Production() && c.DatabaseURL == "" {
		return fmt.Errorf("app: production requires TEKAUTH_DATABASE_URL for the user directory")
	}
	return nil
}

func defaultLogFormat(env string) string {
	if isProductionEnv(env) {
		return "json"
	}
	return "pretty"
}
