package identity

import (
	"errors"

	"tekauth/cmd/security/password"
)

// hashNewPassword applies the password policy and hashes plain with Argon2id.
func hashNewPassword(op string, cfg password.Config, plain string) (string, error) {
	enc, err := cfg.Hash(plain)
	switch {
	case err == nil:
		return enc, nil
	case errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrWeakPassword):
		return "", invalid(op, err.Error())
	default:
		return "", err
	}
}
