package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	internalhttp "github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// Test static errors.
var (
	ErrTestSomeError = errors.New("some error")
)

const (
	testSpaceGUID     = "8e5c5e2a-2a0e-4a6c-9f7e-0d4e3b7b1a01"
	testOrgGUID       = "2b7a4c7e-6f55-4d61-8f3a-5a4f0c6d7e02"
	testAliceGUID     = "0f1d3b8c-4c1e-4b7d-9a6e-3c2b1a0d9e03"
	testBobGUID       = "5a6b7c8d-9e0f-4a1b-8c2d-3e4f5a6b7c04"
	testPostgresGUID  = "11111111-1111-4111-8111-111111111111"
	testTrialGUID     = "22222222-2222-4222-8222-222222222222"
	testSmallPlanGUID = "33333333-3333-4333-8333-333333333333"
	testTrialPlanGUID = "44444444-4444-4444-8444-444444444444"
)

// capturingLogger keeps the message of every warning.
type capturingLogger struct {
	warnings []string
}

func (l *capturingLogger) Debug(string, map[string]interface{}) {}
func (l *capturingLogger) Info(string, map[string]interface{})  {}
func (l *capturingLogger) Error(string, map[string]interface{}) {}

func (l *capturingLogger) Warn(msg string, _ map[string]interface{}) {
	l.warnings = append(l.warnings, msg)
}

// newTestHTTPClient starts a server for handler and returns an
// unauthenticated transport rooted at it.
func newTestHTTPClient(t *testing.T, handler http.HandlerFunc) *internalhttp.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return internalhttp.NewClient(server.URL, nil)
}

// newTestExecutor returns an executor that never retries.
func newTestExecutor() *capi.Executor {
	return capi.NewExecutor(&capi.RetryConfig{MaxRetries: 0})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body interface{}) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func decodeBody(t *testing.T, r *http.Request, target interface{}) {
	t.Helper()

	require.NoError(t, json.NewDecoder(r.Body).Decode(target))
}

type object = map[string]interface{}

func v2Page(next string, resources ...object) object {
	if resources == nil {
		resources = []object{}
	}

	page := object{"resources": resources, "next_url": nil}
	if next != "" {
		page["next_url"] = next
	}

	return page
}

func v3Page(next string, included object, resources ...object) object {
	if resources == nil {
		resources = []object{}
	}

	pagination := object{"next": nil}
	if next != "" {
		pagination["next"] = object{"href": next}
	}

	page := object{"resources": resources, "pagination": pagination}
	if included != nil {
		page["included"] = included
	}

	return page
}

func relationship(guid string) object {
	return object{"data": object{"guid": guid}}
}

func v2User(guid string) object {
	return object{
		"metadata": object{"guid": guid, "created_at": "2024-01-01T00:00:00Z"},
		"entity":   object{"username": "user-" + guid[:4]},
	}
}
