package capi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents a single entry of a v3 "errors" array.
type APIError struct {
	Code   int    `json:"code"   yaml:"code"`
	Title  string `json:"title"  yaml:"title"`
	Detail string `json:"detail" yaml:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (code: %d)", e.Title, e.Detail, e.Code)
}

// Common error codes.
const (
	ErrorCodeNotFound            = 10010
	ErrorCodeNotAuthenticated    = 10002
	ErrorCodeNotAuthorized       = 10003
	ErrorCodeUnprocessableEntity = 10008
	ErrorCodeServiceUnavailable  = 10001
	ErrorCodeBadRequest          = 10005
	ErrorCodeTooManyRequests     = 10013
)

// DomainError is the typed failure surfaced to callers after a remote exchange
// completed with an unsuccessful status. It is only built by ErrorTranslator.
// Description is nil when the response body carried no string "description".
type DomainError struct {
	StatusCode  int        `json:"status_code"           yaml:"status_code"`
	StatusText  string     `json:"status_text"           yaml:"status_text"`
	Description *string    `json:"description,omitempty" yaml:"description,omitempty"`
	Errors      []APIError `json:"errors,omitempty"      yaml:"errors,omitempty"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%d %s", e.StatusCode, e.StatusText))

	if e.Description != nil {
		builder.WriteString(": ")
		builder.WriteString(*e.Description)
	} else if first := e.FirstError(); first != nil {
		builder.WriteString(": ")
		builder.WriteString(first.Error())
	}

	return builder.String()
}

// FirstError returns the first v3 error entry or nil.
func (e *DomainError) FirstError() *APIError {
	if len(e.Errors) > 0 {
		return &e.Errors[0]
	}

	return nil
}

// StatusError is the raw failure reported by the transport when a response
// arrived with a non-success status. The executor translates it into a DomainError.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, e.statusText())
}

func (e *StatusError) statusText() string {
	if e.Status != "" {
		return e.Status
	}

	return http.StatusText(e.StatusCode)
}

// TransportError reports that no response was obtained at all (connection
// refused, reset, timeout). It is the only failure the executor retries.
type TransportError struct {
	Op  string
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed request rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ProvisioningExhaustedError reports that no candidate offering could create
// the requested service instance.
type ProvisioningExhaustedError struct {
	Service   string
	Offerings []string
	Plan      string
}

// Error implements the error interface.
func (e *ProvisioningExhaustedError) Error() string {
	return fmt.Sprintf("could not create service %q: none of the offerings %v could provide plan %q",
		e.Service, e.Offerings, e.Plan)
}

// PermissionCheckError reports that an authorization decision could not be
// reached because a remote lookup failed. The checker denies in that case.
type PermissionCheckError struct {
	User      string
	SpaceGUID string
	Err       error
}

// Error implements the error interface.
func (e *PermissionCheckError) Error() string {
	return fmt.Sprintf("checking permissions of user %q for space %q: %v", e.User, e.SpaceGUID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *PermissionCheckError) Unwrap() error {
	return e.Err
}

// AuthorizationError is returned by EnsureAuthorized when the caller may not proceed.
type AuthorizationError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Unwrap returns the underlying failure, if any.
func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// Common static errors that can be wrapped with context.
var (
	ErrMissingResources          = errors.New("page has no resources array")
	ErrMalformedPage             = errors.New("page is not a JSON object")
	ErrUnknownEnumValue          = errors.New("unknown enum value")
	ErrUnsupportedResource       = errors.New("unsupported resource type")
	ErrConfigRequired            = errors.New("config is required")
	ErrAPIEndpointRequired       = errors.New("API endpoint is required")
	ErrNoHostInURL               = errors.New("no host specified in URL")
	ErrRootInfoRequestFailed     = errors.New("root info request failed")
	ErrNoUAAOrLoginURL           = errors.New("no UAA or login URL found in API root response")
	ErrNoLogCacheURL             = errors.New("no log cache URL configured or discovered")
	ErrStaticTokenCannotRefresh  = errors.New("static token cannot be refreshed")
	ErrNotAuthenticated          = errors.New("not authenticated")
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrSpaceNotFound             = errors.New("space not found")
	ErrUnsupportedCatalogVersion = errors.New("unsupported catalog API version")
	ErrInvalidUserID             = errors.New("user ID is not a valid GUID")
	ErrServicePlanNotFound       = errors.New("service plan not found")
	ErrSkipTLSOnlyInDev          = errors.New("skipping TLS verification is only allowed in development mode")
)

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound, ErrorCodeNotFound)
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized, ErrorCodeNotAuthenticated)
}

// IsForbidden checks if the error is a forbidden error.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden, ErrorCodeNotAuthorized)
}

// StatusCodeOf returns the HTTP status carried by a DomainError or StatusError, or 0.
func StatusCodeOf(err error) int {
	domainErr := &DomainError{}
	if errors.As(err, &domainErr) {
		return domainErr.StatusCode
	}

	statusErr := &StatusError{}
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}

	return 0
}

func hasStatus(err error, status, code int) bool {
	if StatusCodeOf(err) == status {
		return true
	}

	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}

	return false
}

// ErrorTranslator converts a failed exchange into a DomainError.
type ErrorTranslator struct {
	logger Logger
}

// NewErrorTranslator creates a translator that logs parse problems at debug level.
func NewErrorTranslator(logger Logger) *ErrorTranslator {
	return &ErrorTranslator{logger: loggerOrNoop(logger)}
}

// Translate never fails. The description is taken from a top-level string
// "description" field; any other body shape leaves it nil.
func (t *ErrorTranslator) Translate(statusCode int, statusText string, body []byte) *DomainError {
	domainErr := &DomainError{
		StatusCode: statusCode,
		StatusText: statusText,
	}

	if domainErr.StatusText == "" {
		domainErr.StatusText = http.StatusText(statusCode)
	}

	if len(body) == 0 {
		return domainErr
	}

	var payload map[string]json.RawMessage

	err := json.Unmarshal(body, &payload)
	if err != nil {
		t.logger.Debug("error response body is not a JSON object", map[string]interface{}{
			"status": statusCode,
			"error":  err.Error(),
		})

		return domainErr
	}

	if raw, ok := payload["description"]; ok {
		var description string

		err = json.Unmarshal(raw, &description)
		if err != nil {
			t.logger.Debug("error response description is not a string", map[string]interface{}{
				"status": statusCode,
			})
		} else {
			domainErr.Description = &description
		}
	}

	if raw, ok := payload["errors"]; ok {
		var apiErrors []APIError

		err = json.Unmarshal(raw, &apiErrors)
		if err != nil {
			t.logger.Debug("error response errors array could not be parsed", map[string]interface{}{
				"status": statusCode,
				"error":  err.Error(),
			})
		} else {
			domainErr.Errors = apiErrors
		}
	}

	return domainErr
}

// TranslateStatus translates a raw StatusError.
func (t *ErrorTranslator) TranslateStatus(statusErr *StatusError) *DomainError {
	return t.Translate(statusErr.StatusCode, statusErr.statusText(), statusErr.Body)
}
