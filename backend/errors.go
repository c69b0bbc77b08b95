package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-campus"
	goerrors "github.com/goliatone/go-errors"
)

const (
	codeInvalidGrant       = "invalid_grant"
	codeInvalidCredentials = "invalid_credentials"
	codeEmailNotConfirmed  = "email_not_confirmed"
	codeUserAlreadyExists  = "user_already_exists"
	codeEmailExists        = "email_exists"
	codeOverRateLimit      = "over_request_rate_limit"
)

const (
	OpPasswordGrant = "password_grant"
	OpRefreshGrant  = "refresh_grant"
	OpSignUp        = "signup"
	OpLogout        = "logout"
	OpUpdateUser    = "update_user"
	OpFetchProfile  = "fetch_profile"
	OpPatchProfile  = "patch_profile"
)

// APIError is a refusal or transport failure reported by the remote service.
// Status is zero when the request never got a response.
type APIError struct {
	Operation string
	Status    int
	Code      string
	Message   string
	Err       error
}

func (e *APIError) Error() string {
	if e == nil {
		return "backend error"
	}

	scope := "backend"
	if e.Operation != "" {
		scope = "backend " + e.Operation
	}

	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("%s failed (%d %s): %s", scope, e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s failed (%d): %s", scope, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	default:
		return fmt.Sprintf("%s failed with status %d", scope, e.Status)
	}
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient reports whether the request never reached the service.
func (e *APIError) Transient() bool {
	return e != nil && e.Status == 0
}

func transportError(op string, err error) *APIError {
	return &APIError{Operation: op, Err: err, Message: "could not reach backend"}
}

// MapError converts a transport failure into the campus error taxonomy.
// An already mapped error passes through untouched; an APIError is mapped by
// its code even when it wraps a rich error.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(*goerrors.Error); ok {
		return err
	}

	var apiErr *APIError
	if !goerrors.As(err, &apiErr) {
		return campus.WrapError(campus.ErrNetwork, err, nil)
	}

	meta := map[string]any{
		"operation": apiErr.Operation,
		"status":    apiErr.Status,
	}
	if apiErr.Code != "" {
		meta["backend_code"] = apiErr.Code
	}

	code := strings.ToLower(apiErr.Code)
	lowerMsg := strings.ToLower(apiErr.Message)

	switch {
	case apiErr.Transient():
		return campus.WrapError(campus.ErrNetwork, apiErr, meta)
	case apiErr.Status == http.StatusTooManyRequests || code == codeOverRateLimit:
		return campus.WrapError(campus.ErrRateLimited, apiErr, meta)
	case code == codeEmailNotConfirmed || strings.Contains(lowerMsg, "email not confirmed"):
		return campus.WrapError(campus.ErrEmailNotConfirmed, apiErr, meta)
	case code == codeInvalidGrant || code == codeInvalidCredentials:
		return campus.WrapError(campus.ErrInvalidCredentials, apiErr, meta)
	case code == codeUserAlreadyExists || code == codeEmailExists:
		return campus.WrapError(campus.ErrUserExists, apiErr, meta)
	case apiErr.Operation == OpSignUp && apiErr.Status == http.StatusUnprocessableEntity && code == "":
		return campus.WrapError(campus.ErrUserExists, apiErr, meta)
	case apiErr.Status >= http.StatusInternalServerError:
		return campus.WrapError(campus.ErrNetwork, apiErr, meta)
	}

	mapped := campus.WrapError(campus.ErrAuthFailed, apiErr, meta)
	if apiErr.Message != "" {
		mapped.Message = apiErr.Message
	}
	return mapped
}
