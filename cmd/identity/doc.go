// Package identity is tekauth's user directory.
//
// It stores users (Postgres, or memory for dev mode), authenticates email and
// password pairs, and adapts the directory to the session subsystem's user
// lookup so every refresh sees the current role and ban state.
//
// Failed logins can be throttled per (email, client ip) with a LoginThrottle.
package identity
