package capi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTokenUnavailable = errors.New("token unavailable")

func TestInterceptorChain_RequestInterceptors(t *testing.T) {
	t.Parallel()

	chain := capi.NewInterceptorChain()
	ctx := context.Background()

	var executionOrder []string

	chain.AddRequestInterceptor(func(ctx context.Context, req *capi.Request) error {
		executionOrder = append(executionOrder, "first")

		return nil
	})

	chain.AddRequestInterceptor(func(ctx context.Context, req *capi.Request) error {
		executionOrder = append(executionOrder, "second")

		return nil
	})

	req := &capi.Request{
		Method: "GET",
		Path:   "/test",
	}

	err := chain.ExecuteRequestInterceptors(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, executionOrder)
}

func TestInterceptorChain_ResponseInterceptors(t *testing.T) {
	t.Parallel()

	chain := capi.NewInterceptorChain()
	ctx := context.Background()

	var executionOrder []string

	chain.AddResponseInterceptor(func(ctx context.Context, req *capi.Request, resp *capi.Response) error {
		executionOrder = append(executionOrder, "first")

		return nil
	})

	chain.AddResponseInterceptor(func(ctx context.Context, req *capi.Request, resp *capi.Response) error {
		executionOrder = append(executionOrder, "second")

		return nil
	})

	err := chain.ExecuteResponseInterceptors(ctx, &capi.Request{Method: "GET", Path: "/test"}, &capi.Response{StatusCode: 200})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, executionOrder)
}

func TestHeaderInterceptor(t *testing.T) {
	t.Parallel()

	interceptor := capi.HeaderInterceptor(map[string]string{
		"User-Agent":      "capi-deployer/test",
		"X-Custom-Header": "custom-value",
	})

	req := &capi.Request{Method: "GET", Path: "/v3/spaces"}

	err := interceptor(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "capi-deployer/test", req.Headers.Get("User-Agent"))
	assert.Equal(t, "custom-value", req.Headers.Get("X-Custom-Header"))
}

func TestAuthenticationInterceptor(t *testing.T) {
	t.Parallel()

	t.Run("sets bearer token", func(t *testing.T) {
		t.Parallel()

		interceptor := capi.AuthenticationInterceptor(func(ctx context.Context) (string, error) {
			return "test-token", nil
		})

		req := &capi.Request{Method: "GET", Path: "/v3/roles"}

		err := interceptor(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token", req.Headers.Get("Authorization"))
	})

	t.Run("empty token leaves request unauthenticated", func(t *testing.T) {
		t.Parallel()

		interceptor := capi.AuthenticationInterceptor(func(ctx context.Context) (string, error) {
			return "", nil
		})

		req := &capi.Request{Method: "GET", Path: "/"}

		err := interceptor(context.Background(), req)
		require.NoError(t, err)
		assert.Empty(t, req.Headers.Get("Authorization"))
	})

	t.Run("token failure aborts", func(t *testing.T) {
		t.Parallel()

		interceptor := capi.AuthenticationInterceptor(func(ctx context.Context) (string, error) {
			return "", errTokenUnavailable
		})

		err := interceptor(context.Background(), &capi.Request{Method: "GET", Path: "/"})
		require.ErrorIs(t, err, errTokenUnavailable)
	})
}

func TestCorrelationIDInterceptor(t *testing.T) {
	t.Parallel()

	interceptor := capi.CorrelationIDInterceptor()

	first := &capi.Request{Method: "GET", Path: "/v3/spaces"}
	second := &capi.Request{Method: "GET", Path: "/v3/spaces"}
	preset := &capi.Request{Method: "GET", Path: "/v3/spaces", Headers: http.Header{}}
	preset.Headers.Set(capi.HeaderCorrelationID, "caller-id")

	for _, req := range []*capi.Request{first, second, preset} {
		require.NoError(t, interceptor(context.Background(), req))
	}

	assert.Len(t, first.Headers.Get(capi.HeaderCorrelationID), 36)
	assert.NotEqual(t, first.Headers.Get(capi.HeaderCorrelationID), second.Headers.Get(capi.HeaderCorrelationID))
	assert.Equal(t, "caller-id", preset.Headers.Get(capi.HeaderCorrelationID))
}

func TestMetricsInterceptors(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics, err := capi.NewMetrics("test", registry)
	require.NoError(t, err)

	chain := capi.NewInterceptorChain()
	chain.AddRequestInterceptor(capi.MetricsRequestInterceptor())
	chain.AddResponseInterceptor(capi.MetricsResponseInterceptor(metrics))

	ctx := context.Background()

	for _, status := range []int{http.StatusOK, http.StatusOK, http.StatusForbidden, 0} {
		req := &capi.Request{Method: "GET", Path: "/v3/service_plans"}
		require.NoError(t, chain.ExecuteRequestInterceptors(ctx, req))
		require.NoError(t, chain.ExecuteResponseInterceptors(ctx, req, &capi.Response{StatusCode: status}))
	}

	count, err := testutil.GatherAndCount(registry, "test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var metrics *capi.Metrics

	assert.NotPanics(t, func() {
		metrics.ObserveRequest("GET", 200, 0)
		metrics.ObserveAttempt("success")
		metrics.ObserveRetry()
		metrics.ObserveCacheLookup("hit")
		metrics.ObserveAuthorization(true, "admin")
		metrics.ObserveProvisioning("postgres", "created")
	})
}

type levelLogger struct {
	entries []string
}

func (l *levelLogger) Debug(msg string, _ map[string]interface{}) { l.entries = append(l.entries, "debug "+msg) }
func (l *levelLogger) Info(msg string, _ map[string]interface{})  { l.entries = append(l.entries, "info "+msg) }
func (l *levelLogger) Warn(msg string, _ map[string]interface{})  { l.entries = append(l.entries, "warn "+msg) }
func (l *levelLogger) Error(msg string, _ map[string]interface{}) { l.entries = append(l.entries, "error "+msg) }

func TestLoggingInterceptors(t *testing.T) {
	t.Parallel()

	logger := &levelLogger{}
	chain := capi.NewInterceptorChain()
	chain.AddRequestInterceptor(capi.LoggingInterceptor(logger))
	chain.AddResponseInterceptor(capi.LoggingResponseInterceptor(logger))

	ctx := context.Background()
	req := &capi.Request{Method: http.MethodGet, Path: "/v3/service_offerings", Headers: http.Header{}}

	require.NoError(t, chain.ExecuteRequestInterceptors(ctx, req))
	require.NoError(t, chain.ExecuteResponseInterceptors(ctx, req, &capi.Response{StatusCode: http.StatusOK}))
	require.NoError(t, chain.ExecuteResponseInterceptors(ctx, req, &capi.Response{Error: errTokenUnavailable}))

	assert.Equal(t, []string{"debug API Request", "debug API Response", "error API Response Error"}, logger.entries)
}
