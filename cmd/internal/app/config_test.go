package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"TEKAUTH_ENV", "TEKAUTH_HTTP_ADDR", "TEKAUTH_LOG_FORMAT", "TEKAUTH_REDIS_URL",
		"TEKAUTH_DB_SCHEMA", "TEKAUTH_AUDIT_SINK", "TEKAUTH_REQUIRE_TOKEN_HMAC",
		"TEKAUTH_HTTP_READ_TIMEOUT", "TEKAUTH_LOGIN_MAX_FAILURES", "TEKAUTH_LOGIN_FAILURE_WINDOW",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.Env != "development" || cfg.LogFormat != "pretty" || cfg.RequireTokenHMAC {
		t.Fatalf("unexpected dev defaults: %+v", cfg)
	}
	if cfg.DBSchema != "tekauth" || cfg.AuditSink != "log" {
		t.Fatalf("unexpected defaults: schema=%q sink=%q", cfg.DBSchema, cfg.AuditSink)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected read timeout %v", cfg.ReadTimeout)
	}
	if cfg.LoginMaxFailures != 5 || cfg.LoginFailureWindow != 15*time.Minute {
		t.Fatalf("unexpected login throttle: %d per %v", cfg.LoginMaxFailures, cfg.LoginFailureWindow)
	}
}

func TestLoadConfig_LoginThrottle(t *testing.T) {
	t.Setenv("TEKAUTH_LOGIN_MAX_FAILURES", "10")
	t.Setenv("TEKAUTH_LOGIN_FAILURE_WINDOW", "1h")

	cfg := LoadConfig()
	if cfg.LoginMaxFailures != 10 || cfg.LoginFailureWindow != time.Hour {
		t.Fatalf("unexpected login throttle: %d per %v", cfg.LoginMaxFailures, cfg.LoginFailureWindow)
	}
}

func TestLoadConfig_ProductionDefaults(t *testing.T) {
	t.Setenv("TEKAUTH_ENV", "Production")
	t.Setenv("TEKAUTH_LOG_FORMAT", "")
	t.Setenv("TEKAUTH_REQUIRE_TOKEN_HMAC", "")

	cfg := LoadConfig()
	if !cfg.Production() || cfg.LogFormat != "json" || !cfg.RequireTokenHMAC {
		t.Fatalf("unexpected production defaults: %+v", cfg)
	}
}

func TestLoadConfig_ProdAliasRequiresHMAC(t *testing.T) {
	for _, env := range []string{"prod", "PROD", "production"} {
		t.Setenv("TEKAUTH_ENV", env)
		t.Setenv("TEKAUTH_LOG_FORMAT", "")
		t.Setenv("TEKAUTH_REQUIRE_TOKEN_HMAC", "")

		cfg := LoadConfig()
		if !cfg.Production() || !cfg.RequireTokenHMAC || cfg.LogFormat != "json" {
			t.Fatalf("TEKAUTH_ENV=%s: production=%v require_hmac=%v format=%q", env, cfg.Production(), cfg.RequireTokenHMAC, cfg.LogFormat)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{Env: "development", RedisURL: "redis://localhost:6379/0", DBSchema: "tekauth", AuditSink: "log"}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config: %v", err)
	}

	cases := map[string]func(*Config){
		"unknown sink":         func(c *Config) { c.AuditSink = "kafka" },
		"postgres sink w/o db": func(c *Config) { c.AuditSink = "postgres" },
		"bad schema":           func(c *Config) { c.DBSchema = "bad-schema" },
		"no redis":             func(c *Config) { c.RedisURL = " " },
		"prod without db":      func(c *Config) { c.Env = "production" },
	}
	for name, mutate := range cases {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("TEKAUTH_TEST_INT", "-3")
	t.Setenv("TEKAUTH_TEST_DUR", "soon")
	t.Setenv("TEKAUTH_TEST_BOOL", "perhaps")

	if EnvInt("TEKAUTH_TEST_INT", 7) != 7 {
		t.Fatalf("EnvInt should ignore non-positive values")
	}
	if EnvDuration("TEKAUTH_TEST_DUR", time.Second) != time.Second {
		t.Fatalf("EnvDuration should ignore garbage")
	}
	if !EnvBool("TEKAUTH_TEST_BOOL", true) {
		t.Fatalf("EnvBool should ignore garbage")
	}
}
