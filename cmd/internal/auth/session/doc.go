// Package session implements tekauth's session and refresh-token rotation.
//
// A login mints a short-lived access token and a long-lived refresh token.
// Access tokens are stateless. Refresh tokens are backed by a server-side
// record in Redis, keyed by (user id, token id), that stores only a hash of
// the token (HMAC-SHA256 when TEKAUTH_TOKEN_HMAC_KEY is set; otherwise
// SHA-256 for dev).
//
// Every refresh consumes the presented token and issues a new pair. Presenting
// a token that was already rotated out, or one whose hash does not match the
// record, is treated as theft and revokes every session of the user.
//
// Tokens are JWT (HS256) by default or PASETO v4, selected by
// TEKAUTH_AUTH_TOKEN_FORMAT. HTTP handlers are out of scope here.
package session
