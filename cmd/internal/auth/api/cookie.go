// Package authapi holds the HTTP-facing helpers of the session subsystem:
// refresh-token cookie handling, request metadata extraction and the public
// error envelope. Routing lives with the embedding service.
package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cookie defaults.
const (
	DefaultRefreshCookieName = "refreshToken"
	DefaultRefreshCookiePath = "/api/v1/auth"
)

// CookieConfig controls the refresh-token cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieConfig returns the cookie settings for env ("production" or
// anything else). Production cookies are Secure and SameSite=Strict.
func DefaultCookieConfig(env string) CookieConfig {
	cfg := CookieConfig{
		Name:     DefaultRefreshCookieName,
		Path:     DefaultRefreshCookiePath,
		SameSite: http.SameSiteLaxMode,
	}
	if isProduction(env) {
		cfg.Secure = true
		cfg.SameSite = http.SameSiteStrictMode
	}
	return cfg
}

// LoadCookieConfigFromEnv applies overrides on top of DefaultCookieConfig(env):
//
//   - TEKAUTH_AUTH_REFRESH_COOKIE_NAME
//   - TEKAUTH_AUTH_COOKIE_PATH
//   - TEKAUTH_AUTH_COOKIE_DOMAIN
//   - TEKAUTH_AUTH_COOKIE_SECURE (true/false)
//   - TEKAUTH_AUTH_COOKIE_SAMESITE (strict|lax|none)
//
// SameSite=None always forces Secure, as browsers require.
func LoadCookieConfigFromEnv(env string) CookieConfig {
	cfg := DefaultCookieConfig(env)

	if v := strings.TrimSpace(os.Getenv("TEKAUTH_AUTH_REFRESH_COOKIE_NAME")); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("TEKAUTH_AUTH_COOKIE_PATH")); v != "" {
		cfg.Path = v
	}
	cfg.Domain = strings.TrimSpace(os.Getenv("TEKAUTH_AUTH_COOKIE_DOMAIN"))
	cfg.Secure = envBool("TEKAUTH_AUTH_COOKIE_SECURE", cfg.Secure)
	if v := strings.TrimSpace(os.Getenv("TEKAUTH_AUTH_COOKIE_SAMESITE")); v != "" {
		cfg.SameSite = parseSameSite(v)
	}

	if cfg.SameSite == http.SameSiteNoneMode {
		cfg.Secure = true
	}
	return cfg
}

// SetRefreshCookie stores the refresh token in an HttpOnly cookie expiring with it.
func SetRefreshCookie(w http.ResponseWriter, cfg CookieConfig, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    token,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// ClearRefreshCookie expires the refresh cookie with the same attributes it was set with.
func ClearRefreshCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// RefreshTokenFromRequest returns the refresh cookie value, or "" when absent.
// An empty result is passed to Service.Refresh, which reports a missing token.
func RefreshTokenFromRequest(r *http.Request, cfg CookieConfig) string {
	if r == nil {
		return ""
	}
	c, err := r.Cookie(cfg.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func isProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
