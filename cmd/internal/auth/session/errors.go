package session

import (
	"errors"
)

var (
	// ErrMissingToken is returned when no refresh token was presented.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned when a token fails cryptographic or claim verification.
	// It is terminal for the request; the client must re-authenticate.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionInvalid is returned when the server-side session backing a refresh token
	// is unknown, expired, revoked, rotated out, or its stored hash does not match.
	// All of those collapse into this one error so callers cannot tell them apart.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrAccountSuspended is returned when the user behind a session is banned.
	ErrAccountSuspended = errors.New("account suspended")

	// ErrUserNotFound is returned when the user behind a session no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrStoreUnavailable is returned when the session store (or the user lookup
	// collaborator) cannot be reached in time. Callers must deny, never grant.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Verification details. Every codec error wraps ErrInvalidToken and one of these.
var (
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrBadSignature     = errors.New("bad signature")
	ErrIssuerMismatch   = errors.New("issuer mismatch")
	ErrAudienceMismatch = errors.New("audience mismatch")
	ErrMalformedToken   = errors.New("malformed token")
	ErrWrongTokenType   = errors.New("wrong token type")
)

// TokenError reports why a token failed verification.
type TokenError struct {
	Detail error
}

func (e *TokenError) Error() string {
	return ErrInvalidToken.Error() + ": " + e.Detail.Error()
}

// Unwrap exposes both ErrInvalidToken and the detail sentinel.
func (e *TokenError) Unwrap() []error { return []error{ErrInvalidToken, e.Detail} }

func invalidToken(detail error) error {
	return &TokenError{Detail: detail}
}

// storeUnavailable wraps an infrastructure failure under ErrStoreUnavailable.
func storeUnavailable(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// StoreError carries the failing store operation for logs.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// Public error codes, stable for API responses.
const (
	CodeMissingToken     = "missing_token"
	CodeInvalidToken     = "invalid_token"
	CodeSessionInvalid   = "session_invalid"
	CodeAccountSuspended = "account_suspended"
	CodeUserNotFound     = "user_not_found"
	CodeStoreUnavailable = "store_unavailable"
	CodeServerError      = "server_error"
)

// PublicCode maps an error returned by Service to a stable external code.
//
// Invalid tokens and invalid sessions both tell the client to re-authenticate;
// PublicMessage gives them the same text.
func PublicCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	case errors.Is(err, ErrMissingToken):
		return CodeMissingToken
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrSessionInvalid):
		return CodeSessionInvalid
	case errors.Is(err, ErrAccountSuspended):
		return CodeAccountSuspended
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	default:
		return CodeServerError
	}
}

// PublicMessage returns a user-facing message that does not reveal internal cases.
func PublicMessage(err error) string {
	switch PublicCode(err) {
	case "":
		return ""
	case CodeMissingToken, CodeInvalidToken, CodeSessionInvalid:
		return "session invalid or expired"
	case CodeAccountSuspended:
		return "account suspended"
	case CodeUserNotFound:
		return "user not found"
	case CodeStoreUnavailable:
		return "please retry later"
	default:
		return "internal error"
	}
}

// Reasons a session was rejected. They reach logs, metrics and audit only.
const (
	ReasonNotFound     = "not_found"
	ReasonReuse        = "reuse_detected"
	ReasonHashMismatch = "hash_mismatch"
)

// SessionError explains an ErrSessionInvalid for internal consumers.
//
// Revoked is the number of sessions removed as a consequence (reuse or
// mismatch); it is zero for a plain unknown session.
type SessionError struct {
	Reason  string
	Revoked int
}

func (e *SessionError) Error() string {
	return ErrSessionInvalid.Error() + ": " + e.Reason
}

func (e *SessionError) Unwrap() error { return ErrSessionInvalid }

// sessionReason extracts the rejection reason from err, if any.
func sessionReason(err error) (string, int) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Reason, se.Revoked
	}
	return "", 0
}
