package authapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tekauth/cmd/identity"
	"tekauth/cmd/internal/auth/session"
)

// Codes for login failures that never reach the session layer.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeTooManyAttempts    = "too_many_attempts"
	CodeInvalidInput       = "invalid_input"
)

// loginRetryAfter matches identity.DefaultLoginFailureWindow.
const loginRetryAfter = "900"

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// publicError maps err to status, code and message. Identity kinds are
// checked first; everything else goes through the session taxonomy.
func publicError(err error) (int, apiError) {
	switch {
	case err == nil:
		return http.StatusOK, apiError{}
	case errors.Is(err, identity.ErrThrottled):
		return http.StatusTooManyRequests, apiError{Code: CodeTooManyAttempts, Message: "too many failed login attempts, try again later"}
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, apiError{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	case errors.Is(err, identity.ErrBanned):
		return http.StatusForbidden, apiError{Code: session.CodeAccountSuspended, Message: session.PublicMessage(session.ErrAccountSuspended)}
	case errors.Is(err, identity.ErrInvalidInput):
		return http.StatusBadRequest, apiError{Code: CodeInvalidInput, Message: "invalid input"}
	}

	code := session.PublicCode(err)
	body := apiError{Code: code, Message: session.PublicMessage(err)}
	switch code {
	case session.CodeMissingToken, session.CodeInvalidToken, session.CodeSessionInvalid:
		return http.StatusUnauthorized, body
	case session.CodeAccountSuspended:
		return http.StatusForbidden, body
	case session.CodeUserNotFound:
		return http.StatusNotFound, body
	case session.CodeStoreUnavailable:
		return http.StatusServiceUnavailable, body
	default:
		return http.StatusInternalServerError, body
	}
}

// StatusFor maps a session or login error to its HTTP status.
func StatusFor(err error) int {
	status, _ := publicError(err)
	return status
}

// WriteError writes the public error envelope for err. Reasons beyond the
// public code are never written.
func WriteError(w http.ResponseWriter, err error) {
	status, body := publicError(err)
	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", loginRetryAfter)
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
