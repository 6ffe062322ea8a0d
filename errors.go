package clubauth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "session_invalid_credentials"
	TextCodeSessionExpired     = "session_expired"
	TextCodeRefreshRejected    = "session_refresh_rejected"
	TextCodeNoRefreshToken     = "session_no_refresh_token"
	TextCodeNoRoleAssigned     = "session_no_role_assigned"
)

// ErrInvalidCredentials is returned when the credential exchange is rejected.
var ErrInvalidCredentials = errors.New("invalid username or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned after the session has been invalidated: a 401
// survived the refresh-and-retry cycle, or the refresh token itself was
// rejected. The session is already logged out when callers see it.
var ErrSessionExpired = errors.New("session expired, please log in again", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshRejected is returned when the backend refuses the refresh token.
var ErrRefreshRejected = errors.New("refresh token rejected", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshRejected).
	WithCode(errors.CodeUnauthorized)

// ErrNoRefreshToken is returned when a refresh is requested without a stored
// refresh token.
var ErrNoRefreshToken = errors.New("no refresh token available", errors.CategoryAuth).
	WithTextCode(TextCodeNoRefreshToken).
	WithCode(errors.CodeUnauthorized)

// ErrNoRoleAssigned marks the pending-approval outcome: the user exists but
// holds no role yet. It is an expected, user-facing state rather than a fault.
var ErrNoRoleAssigned = errors.New("no role assigned yet", errors.CategoryValidation).
	WithTextCode(TextCodeNoRoleAssigned).
	WithCode(errors.CodeBadRequest)

// IsSessionExpired reports whether err means the session was invalidated.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsNoRoleAssigned reports whether err is the pending-approval outcome.
func IsNoRoleAssigned(err error) bool {
	return errors.Is(err, ErrNoRoleAssigned)
}

// IsCredentialError reports whether err means the login exchange was refused.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}
