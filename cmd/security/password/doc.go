// Package password hashes and verifies user passwords for tekauth.
//
// New hashes are Argon2id in PHC string form. Verify also accepts bcrypt
// hashes carried over from the previous user store so existing accounts can
// sign in; NeedsRehash tells callers when to upgrade a stored hash.
//
// Hash strings are untrusted input: Verify refuses parameters far above the
// configured cost instead of spending unbounded CPU or memory on them.
package password
