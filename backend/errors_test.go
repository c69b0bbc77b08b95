package backend_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/backend"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		textCode string
	}{
		{
			name:     "transport failure",
			err:      &backend.APIError{Operation: backend.OpPasswordGrant, Err: fmt.Errorf("dial tcp: refused")},
			textCode: campus.TextCodeNetwork,
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("boom"),
			textCode: campus.TextCodeNetwork,
		},
		{
			name:     "invalid grant",
			err:      &backend.APIError{Operation: backend.OpPasswordGrant, Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"},
			textCode: campus.TextCodeInvalidCredentials,
		},
		{
			name:     "invalid credentials",
			err:      &backend.APIError{Operation: backend.OpPasswordGrant, Status: 400, Code: "invalid_credentials"},
			textCode: campus.TextCodeInvalidCredentials,
		},
		{
			name:     "email not confirmed code",
			err:      &backend.APIError{Operation: backend.OpPasswordGrant, Status: 400, Code: "email_not_confirmed"},
			textCode: campus.TextCodeEmailNotConfirmed,
		},
		{
			name:     "email not confirmed description",
			err:      &backend.APIError{Operation: backend.OpPasswordGrant, Status: 400, Code: "invalid_grant", Message: "Email not confirmed"},
			textCode: campus.TextCodeEmailNotConfirmed,
		},
		{
			name:     "rate limited",
			err:      &backend.APIError{Operation: backend.OpPasswordGrant, Status: http.StatusTooManyRequests},
			textCode: campus.TextCodeRateLimited,
		},
		{
			name:     "user exists",
			err:      &backend.APIError{Operation: backend.OpSignUp, Status: 400, Code: "user_already_exists"},
			textCode: campus.TextCodeUserExists,
		},
		{
			name:     "signup unprocessable",
			err:      &backend.APIError{Operation: backend.OpSignUp, Status: http.StatusUnprocessableEntity},
			textCode: campus.TextCodeUserExists,
		},
		{
			name:     "signup weak password",
			err:      &backend.APIError{Operation: backend.OpSignUp, Status: http.StatusUnprocessableEntity, Code: "weak_password"},
			textCode: campus.TextCodeAuthFailed,
		},
		{
			name:     "server error",
			err:      &backend.APIError{Operation: backend.OpFetchProfile, Status: http.StatusBadGateway},
			textCode: campus.TextCodeNetwork,
		},
		{
			name:     "other refusal",
			err:      &backend.APIError{Operation: backend.OpUpdateUser, Status: 400, Code: "weak_password", Message: "Password should be at least 6 characters"},
			textCode: campus.TextCodeAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := backend.MapError(tt.err)
			require.Error(t, mapped)
			assert.True(t, campus.HasTextCode(mapped, tt.textCode), "got %v", mapped)
		})
	}
}

func TestMapErrorKeepsBackendMessageAndMetadata(t *testing.T) {
	apiErr := &backend.APIError{Operation: backend.OpUpdateUser, Status: 400, Code: "weak_password", Message: "Password should be at least 6 characters"}

	mapped := backend.MapError(apiErr)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(mapped, &richErr))
	assert.Equal(t, "Password should be at least 6 characters", richErr.Message)
	assert.Equal(t, backend.OpUpdateUser, richErr.Metadata["operation"])
	assert.Equal(t, "weak_password", richErr.Metadata["backend_code"])
	assert.Equal(t, apiErr, richErr.Source)

	// the sentinel is never mutated
	assert.Equal(t, "authentication failed", campus.ErrAuthFailed.Message)
}

func TestMapErrorPassesRichErrors(t *testing.T) {
	err := campus.WrapError(campus.ErrBackendUnavailable, nil, nil)
	assert.Same(t, err, backend.MapError(err))
	assert.NoError(t, backend.MapError(nil))
}

func TestMapErrorAPIErrorWrappingRichError(t *testing.T) {
	apiErr := &backend.APIError{
		Operation: backend.OpSignUp,
		Status:    http.StatusUnprocessableEntity,
		Code:      "weak_password",
		Message:   "password is required",
		Err:       campus.WrapError(campus.ErrMissingCredentials, nil, nil),
	}

	mapped := backend.MapError(apiErr)
	assert.True(t, campus.HasTextCode(mapped, campus.TextCodeAuthFailed))

	wrapped := fmt.Errorf("sign up: %w", &backend.APIError{
		Operation: backend.OpPasswordGrant,
		Status:    http.StatusBadRequest,
		Code:      "invalid_grant",
		Err:       campus.WrapError(campus.ErrAuthFailed, nil, nil),
	})
	assert.True(t, campus.HasTextCode(backend.MapError(wrapped), campus.TextCodeInvalidCredentials))
}

func TestAPIErrorMessage(t *testing.T) {
	err := &backend.APIError{Operation: "signup", Status: 422, Code: "user_already_exists", Message: "User already registered"}
	assert.Equal(t, "backend signup failed (422 user_already_exists): User already registered", err.Error())

	transport := &backend.APIError{Operation: "logout", Err: fmt.Errorf("timeout")}
	assert.True(t, transport.Transient())
	assert.ErrorContains(t, transport, "timeout")
}
