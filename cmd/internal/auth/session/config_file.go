package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML shape of Config. Durations are Go duration strings.
//
//	issuer = "tekbook-api"
//	audience = "tekbook-client"
//	access_ttl = "15m"
//	refresh_ttl = "168h"
//	token_format = "jwt"
//
//	[redis]
//	key_prefix = "tek:"
//	op_timeout = "2s"
type fileConfig struct {
	Issuer       string `toml:"issuer"`
	Audience     string `toml:"audience"`
	AccessTTL    string `toml:"access_ttl"`
	RefreshTTL   string `toml:"refresh_ttl"`
	ClockSkew    string `toml:"clock_skew"`
	TokenIDBytes int    `toml:"token_id_bytes"`
	TokenFormat  string `toml:"token_format"`

	Redis struct {
		KeyPrefix *string `toml:"key_prefix"`
		OpTimeout string  `toml:"op_timeout"`
	} `toml:"redis"`
}

// LoadConfig builds a Config from defaults, then the TOML file at path (if
// non-empty), then environment variables. Secrets are only read from env.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfig, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: %s: unknown key %q", ErrConfig, path, undecoded[0].String())
	}

	if fc.Issuer != "" {
		cfg.Issuer = fc.Issuer
	}
	if fc.Audience != "" {
		cfg.Audience = fc.Audience
	}
	if fc.TokenIDBytes != 0 {
		cfg.TokenIDBytes = fc.TokenIDBytes
	}
	if fc.TokenFormat != "" {
		cfg.TokenFormat = strings.ToLower(fc.TokenFormat)
	}
	if fc.Redis.KeyPrefix != nil {
		cfg.KeyPrefix = *fc.Redis.KeyPrefix
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"access_ttl", fc.AccessTTL, &cfg.AccessTokenTTL},
		{"refresh_ttl", fc.RefreshTTL, &cfg.RefreshTokenTTL},
		{"clock_skew", fc.ClockSkew, &cfg.ClockSkew},
		{"redis.op_timeout", fc.Redis.OpTimeout, &cfg.OpTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %s: %w", ErrConfig, path, d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}
