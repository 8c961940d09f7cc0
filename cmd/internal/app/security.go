package app

import (
	"errors"
	"fmt"

	"tekauth/cmd/security/token"
)

// NewTokenHasher builds the refresh-token hasher and enforces the HMAC policy.
// With RequireTokenHMAC set a missing or short key fails startup instead of
// silently falling back to plain SHA-256.
func NewTokenHasher(cfg Config, log Logger) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, fmt.Errorf("security policy: TEKAUTH_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: TEKAUTH_REQUIRE_TOKEN_HMAC=true but %s is too short (min %d bytes)", token.HMACEnvKey, token.MinHMACKeyBytes)
	case err != nil:
		return token.Hasher{}, err
	}

	if cfg.RequireTokenHMAC && !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	if !h.HMAC() {
		log.Warn("security.token_hash.sha256_only", "hint", "set "+token.HMACEnvKey)
	}
	return h, nil
}
