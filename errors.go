package campus

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeEmailNotConfirmed  = "EMAIL_NOT_CONFIRMED"
	TextCodeRateLimited        = "RATE_LIMITED"
	TextCodeAuthFailed         = "AUTH_FAILED"
	TextCodeNetwork            = "NETWORK_ERROR"
	TextCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	TextCodeMissingCredentials = "MISSING_CREDENTIALS"
	TextCodeBackendUnavailable = "BACKEND_UNCONFIGURED"
	TextCodeUserExists         = "USER_ALREADY_EXISTS"
	TextCodeInvalidProfile     = "INVALID_PROFILE"
	TextCodeInvalidTransition  = "INVALID_AUTH_TRANSITION"
)

// ErrInvalidCredentials is returned when email and password do not match.
var ErrInvalidCredentials = goerrors.New("invalid login credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotConfirmed is returned when the account exists but the email was never confirmed.
var ErrEmailNotConfirmed = goerrors.New("email not confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotConfirmed).
	WithCode(goerrors.CodeUnauthorized)

// ErrRateLimited is returned when the backend throttles auth requests.
var ErrRateLimited = goerrors.New("too many requests, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(429)

// ErrAuthFailed covers other backend refusals.
var ErrAuthFailed = goerrors.New("authentication failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNetwork is returned when the backend cannot be reached.
var ErrNetwork = goerrors.New("could not connect, try again", goerrors.CategoryOperation).
	WithTextCode(TextCodeNetwork).
	WithCode(503)

// ErrNotAuthenticated is returned by operations that need a current user.
var ErrNotAuthenticated = goerrors.New("user not authenticated", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingCredentials is returned when email or password is empty.
var ErrMissingCredentials = goerrors.New("email and password are required", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingCredentials).
	WithCode(goerrors.CodeBadRequest)

// ErrBackendUnavailable is returned by a client without URL or API key.
var ErrBackendUnavailable = goerrors.New("backend is not configured", goerrors.CategoryOperation).
	WithTextCode(TextCodeBackendUnavailable).
	WithCode(503)

// ErrUserExists is returned on sign up with a registered email.
var ErrUserExists = goerrors.New("user already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrInvalidProfile is returned for profile rows or updates that do not fit the schema.
var ErrInvalidProfile = goerrors.New("invalid profile", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidProfile).
	WithCode(422)

// WrapError clones base, records err as its source and merges metadata.
func WrapError(base *goerrors.Error, err error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// HasTextCode reports whether err is a rich error with the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsAuthError reports whether err belongs to the authentication family
// (invalid credentials, unconfirmed email, rate limiting).
func IsAuthError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth || richErr.Category == goerrors.CategoryRateLimit
}

// IsNetworkError reports whether err means the backend was unreachable.
func IsNetworkError(err error) bool {
	return HasTextCode(err, TextCodeNetwork)
}

// IsNotAuthenticated reports whether err is ErrNotAuthenticated.
func IsNotAuthenticated(err error) bool {
	return HasTextCode(err, TextCodeNotAuthenticated)
}

// ErrorMessage returns the user facing message of err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}
