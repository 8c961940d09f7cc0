package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Token wire formats understood by NewCodec.
const (
	FormatJWT    = "jwt"
	FormatPaseto = "paseto"
)

const minSecretBytes = 32

// Config defines all runtime configuration for the session subsystem.
//
// It controls token lifetimes, issuer/audience binding, clock skew tolerance,
// token-id entropy, signing keys and the Redis key layout.
type Config struct {
	// Issuer and Audience are bound into every token and checked on verify.
	Issuer   string
	Audience string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// TokenIDBytes is the number of random bytes behind every token id (jti).
	TokenIDBytes int

	// TokenFormat selects the codec: FormatJWT or FormatPaseto.
	TokenFormat string

	// HS256 secrets for FormatJWT. They must differ.
	AccessSecret  string
	RefreshSecret string

	// PASETO keys for FormatPaseto: v4.public signing key for access tokens,
	// v4.local symmetric key for refresh tokens.
	PasetoV4SecretKeyHex string
	PasetoV4LocalKeyHex  string

	// KeyPrefix namespaces every Redis key written by the registry.
	KeyPrefix string

	// OpTimeout bounds each registry call on top of the caller's context.
	// Zero disables the extra bound.
	OpTimeout time.Duration
}

// DefaultConfig returns the baseline configuration. Keys are never defaulted.
func DefaultConfig() Config {
	return Config{
		Issuer:          "tekbook-api",
		Audience:        "tekbook-client",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
		TokenIDBytes:    16,
		TokenFormat:     FormatJWT,
		OpTimeout:       2 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required for TEKAUTH_AUTH_TOKEN_FORMAT=jwt (default):
//   - TEKAUTH_JWT_ACCESS_SECRET
//   - TEKAUTH_JWT_REFRESH_SECRET
//
// Required for TEKAUTH_AUTH_TOKEN_FORMAT=paseto:
//   - TEKAUTH_PASETO_V4_SECRET_KEY_HEX
//   - TEKAUTH_PASETO_V4_LOCAL_KEY_HEX
//
// Optional (durations must be valid Go duration strings):
//   - TEKAUTH_AUTH_ISSUER
//   - TEKAUTH_AUTH_AUDIENCE
//   - TEKAUTH_AUTH_ACCESS_TTL
//   - TEKAUTH_AUTH_REFRESH_TTL
//   - TEKAUTH_AUTH_CLOCK_SKEW
//   - TEKAUTH_AUTH_TOKEN_ID_BYTES
//   - TEKAUTH_SESSION_KEY_PREFIX
//   - TEKAUTH_SESSION_OP_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := envTrim("TEKAUTH_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := envTrim("TEKAUTH_AUTH_AUDIENCE"); v != "" {
		cfg.Audience = v
	}

	durations := []struct {
		key      string
		dst      *time.Duration
		allowNil bool
	}{
		{"TEKAUTH_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL, false},
		{"TEKAUTH_AUTH_REFRESH_TTL", &cfg.RefreshTokenTTL, false},
		{"TEKAUTH_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
		{"TEKAUTH_SESSION_OP_TIMEOUT", &cfg.OpTimeout, true},
	}
	for _, d := range durations {
		v := envTrim(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowNil) {
			return ErrConfig
		}
		*d.dst = parsed
	}

	if v := envTrim("TEKAUTH_AUTH_TOKEN_ID_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ErrConfig
		}
		cfg.TokenIDBytes = n
	}
	if v := envTrim("TEKAUTH_AUTH_TOKEN_FORMAT"); v != "" {
		cfg.TokenFormat = strings.ToLower(v)
	}

	if v := envTrim("TEKAUTH_JWT_ACCESS_SECRET"); v != "" {
		cfg.AccessSecret = v
	}
	if v := envTrim("TEKAUTH_JWT_REFRESH_SECRET"); v != "" {
		cfg.RefreshSecret = v
	}
	if v := envTrim("TEKAUTH_PASETO_V4_SECRET_KEY_HEX"); v != "" {
		cfg.PasetoV4SecretKeyHex = v
	}
	if v := envTrim("TEKAUTH_PASETO_V4_LOCAL_KEY_HEX"); v != "" {
		cfg.PasetoV4LocalKeyHex = v
	}

	// The prefix may legitimately be set to empty, so presence matters here.
	if v, ok := os.LookupEnv("TEKAUTH_SESSION_KEY_PREFIX"); ok {
		cfg.KeyPrefix = strings.TrimSpace(v)
	}
	return nil
}

// Validate checks invariants across fields. It returns ErrConfig on failure.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" || strings.TrimSpace(c.Audience) == "" {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrConfig
	}
	// Access tokens are the short-lived half of the pair.
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return ErrConfig
	}
	if c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute {
		return ErrConfig
	}
	if c.TokenIDBytes < 16 || c.TokenIDBytes > 64 {
		return ErrConfig
	}
	if c.OpTimeout < 0 {
		return ErrConfig
	}

	switch c.TokenFormat {
	case FormatJWT:
		if len(c.AccessSecret) < minSecretBytes || len(c.RefreshSecret) < minSecretBytes {
			return ErrConfig
		}
		if c.AccessSecret == c.RefreshSecret {
			return ErrConfig
		}
	case FormatPaseto:
		if c.PasetoV4SecretKeyHex == "" || c.PasetoV4LocalKeyHex == "" {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}

func envTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
