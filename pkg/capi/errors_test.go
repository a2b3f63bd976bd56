package capi_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	err := &capi.APIError{
		Code:   10010,
		Title:  "CF-ResourceNotFound",
		Detail: "Space not found",
	}

	assert.Equal(t, "CF-ResourceNotFound: Space not found (code: 10010)", err.Error())
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestErrorTranslator_Translate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		statusText  string
		body        string
		description *string
		errorCount  int
		message     string
	}{
		{
			name:        "description string",
			status:      http.StatusForbidden,
			statusText:  "Forbidden",
			body:        `{"description": "You are not authorized", "error_code": "CF-NotAuthorized"}`,
			description: strPtr("You are not authorized"),
			message:     "403 Forbidden: You are not authorized",
		},
		{
			name:       "description not a string",
			status:     http.StatusBadRequest,
			statusText: "Bad Request",
			body:       `{"description": 42}`,
			message:    "400 Bad Request",
		},
		{
			name:       "body not an object",
			status:     http.StatusBadGateway,
			statusText: "Bad Gateway",
			body:       `<html>upstream down</html>`,
			message:    "502 Bad Gateway",
		},
		{
			name:       "JSON array body",
			status:     http.StatusInternalServerError,
			statusText: "Internal Server Error",
			body:       `["a", "b"]`,
			message:    "500 Internal Server Error",
		},
		{
			name:       "empty body and derived status text",
			status:     http.StatusNotFound,
			statusText: "",
			body:       ``,
			message:    "404 Not Found",
		},
		{
			name:       "v3 errors array",
			status:     http.StatusUnprocessableEntity,
			statusText: "Unprocessable Entity",
			body:       `{"errors": [{"code": 10008, "title": "CF-UnprocessableEntity", "detail": "name taken"}]}`,
			errorCount: 1,
			message:    "422 Unprocessable Entity: CF-UnprocessableEntity: name taken (code: 10008)",
		},
	}

	translator := capi.NewErrorTranslator(nil)

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			domainErr := translator.Translate(testCase.status, testCase.statusText, []byte(testCase.body))
			require.NotNil(t, domainErr)

			assert.Equal(t, testCase.status, domainErr.StatusCode)
			assert.Equal(t, testCase.description, domainErr.Description)
			assert.Len(t, domainErr.Errors, testCase.errorCount)
			assert.Equal(t, testCase.message, domainErr.Error())
		})
	}
}

func TestErrorTranslator_TranslateStatus(t *testing.T) {
	t.Parallel()

	statusErr := &capi.StatusError{
		StatusCode: http.StatusForbidden,
		Body:       []byte(`{"description": "nope"}`),
	}

	domainErr := capi.NewErrorTranslator(nil).TranslateStatus(statusErr)

	assert.Equal(t, "Forbidden", domainErr.StatusText)
	require.NotNil(t, domainErr.Description)
	assert.Equal(t, "nope", *domainErr.Description)
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	forbidden := &capi.DomainError{StatusCode: http.StatusForbidden}
	notFound := &capi.StatusError{StatusCode: http.StatusNotFound}
	wrapped := fmt.Errorf("creating service: %w", forbidden)

	assert.True(t, capi.IsForbidden(forbidden))
	assert.True(t, capi.IsForbidden(wrapped))
	assert.False(t, capi.IsForbidden(notFound))

	assert.True(t, capi.IsNotFound(notFound))
	assert.True(t, capi.IsNotFound(&capi.APIError{Code: capi.ErrorCodeNotFound}))
	assert.False(t, capi.IsNotFound(forbidden))

	assert.True(t, capi.IsUnauthorized(&capi.DomainError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, capi.IsUnauthorized(capi.ErrSpaceNotFound))

	assert.Equal(t, http.StatusForbidden, capi.StatusCodeOf(wrapped))
	assert.Equal(t, 0, capi.StatusCodeOf(capi.ErrMissingResources))

	assert.Nil(t, forbidden.FirstError())

	unprocessable := &capi.DomainError{Errors: []capi.APIError{{Code: capi.ErrorCodeUnprocessableEntity, Detail: "name taken"}}}
	require.NotNil(t, unprocessable.FirstError())
	assert.Equal(t, "name taken", unprocessable.FirstError().Detail)
}

func TestProvisioningExhaustedError_Error(t *testing.T) {
	t.Parallel()

	err := &capi.ProvisioningExhaustedError{
		Service:   "db",
		Offerings: []string{"postgres", "postgres-ha"},
		Plan:      "small",
	}

	assert.Contains(t, err.Error(), `"db"`)
	assert.Contains(t, err.Error(), "postgres-ha")
	assert.Contains(t, err.Error(), `"small"`)
}

func strPtr(value string) *string {
	return &value
}
