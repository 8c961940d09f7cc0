// Package token provides refresh-token hashing for server-side session storage.
//
// It is the single source of truth for how a refresh token is turned into the
// value stored in a session record.
//
// Modes:
//   - HMAC-SHA256(token, key) when a key is configured (production).
//   - SHA-256(token) when no key is configured (dev and back-compat with
//     records written by the previous Node service).
//
// Output is always 64 lowercase hex chars, compared in constant time.
//
// Environment:
//   - TEKAUTH_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
