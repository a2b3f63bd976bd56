package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// TokenManager supplies the bearer token sent with every request.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
}

// TokenRefresher is implemented by token managers that can renew a token the
// server rejected with 401.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) error
}

// Request describes one API call. Path is either relative to the base URL or
// an absolute URL such as a next-page locator.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client is the HTTPS/JSON transport. A response with status >= 400 is
// returned together with a *capi.StatusError; a failure to obtain any response
// is a *capi.TransportError.
type Client struct {
	baseURL      *url.URL
	httpClient   *retryablehttp.Client
	tokenManager TokenManager
	logger       capi.Logger
	debug        bool
	userAgent    string
	metrics      *capi.Metrics
	interceptors *capi.InterceptorChain
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger capi.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			return
		}

		c.logger = logger
		c.httpClient.Logger = &leveledLogger{logger: logger}
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithRetryConfig sets transport-level retries for connection failures.
// The resilient executor normally owns retries, so the default is none.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithTimeout bounds every single HTTP exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.HTTPClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying standard client, e.g. for custom TLS.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient.HTTPClient = client
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(metrics *capi.Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithRequestInterceptor appends a request interceptor.
func WithRequestInterceptor(interceptor capi.RequestInterceptor) Option {
	return func(c *Client) {
		c.interceptors.AddRequestInterceptor(interceptor)
	}
}

// WithResponseInterceptor appends a response interceptor.
func WithResponseInterceptor(interceptor capi.ResponseInterceptor) Option {
	return func(c *Client) {
		c.interceptors.AddResponseInterceptor(interceptor)
	}
}

// NewClient creates a transport for baseURL. A nil tokenManager sends
// unauthenticated requests.
func NewClient(baseURL string, tokenManager TokenManager, opts ...Option) *Client {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		parsed = &url.URL{}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.TransportRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout
	retryClient.CheckRetry = retryConnectionFailures
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	client := &Client{
		baseURL:      parsed,
		httpClient:   retryClient,
		tokenManager: tokenManager,
		logger:       capi.NoopLogger(),
		userAgent:    "capi-deployer/1.0",
		interceptors: capi.NewInterceptorChain(),
	}

	for _, opt := range opts {
		opt(client)
	}

	client.interceptors.AddRequestInterceptor(capi.CorrelationIDInterceptor())
	client.interceptors.AddRequestInterceptor(capi.HeaderInterceptor(map[string]string{
		"Accept":     "application/json",
		"User-Agent": client.userAgent,
	}))
	client.interceptors.AddRequestInterceptor(capi.AuthenticationInterceptor(client.token))

	if client.debug {
		client.interceptors.AddRequestInterceptor(capi.LoggingInterceptor(client.logger))
		client.interceptors.AddResponseInterceptor(capi.LoggingResponseInterceptor(client.logger))
	}

	if client.metrics != nil {
		client.interceptors.AddRequestInterceptor(capi.MetricsRequestInterceptor())
		client.interceptors.AddResponseInterceptor(capi.MetricsResponseInterceptor(client.metrics))
	}

	return client
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do performs the request. On 401 the token is refreshed once, when the token
// manager supports it, and the request re-sent.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.send(ctx, req)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	refresher, ok := c.tokenManager.(TokenRefresher)
	if !ok {
		return resp, err
	}

	refreshErr := refresher.RefreshToken(ctx)
	if refreshErr != nil {
		c.logger.Warn("token refresh after 401 failed", map[string]interface{}{
			"error": refreshErr.Error(),
		})

		return resp, err
	}

	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	intercepted := &capi.Request{
		Method:  req.Method,
		Path:    target.Path,
		Headers: make(http.Header),
		Body:    body,
	}

	for key, value := range req.Headers {
		intercepted.Headers.Set(key, value)
	}

	if body != nil {
		intercepted.Headers.Set("Content-Type", "application/json")
	}

	err = c.interceptors.ExecuteRequestInterceptors(ctx, intercepted)
	if err != nil {
		return nil, err
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target.String(), rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header = intercepted.Headers

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, redact(target), ctxErr)
		}

		transportErr := &capi.TransportError{Op: req.Method, URL: redact(target), Err: err}
		_ = c.interceptors.ExecuteResponseInterceptors(ctx, intercepted, &capi.Response{Error: transportErr})

		return nil, transportErr
	}

	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &capi.TransportError{Op: req.Method, URL: redact(target), Err: fmt.Errorf("reading response body: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}

	_ = c.interceptors.ExecuteResponseInterceptors(ctx, intercepted, &capi.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       respBody,
	})

	if resp.StatusCode >= http.StatusBadRequest {
		return resp, &capi.StatusError{
			StatusCode: resp.StatusCode,
			Status:     reasonPhrase(httpResp),
			Body:       respBody,
		}
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// GetJSON returns the body of a successful GET. It serves as a capi.PageLoader.
func (c *Client) GetJSON(ctx context.Context, uri string) ([]byte, error) {
	resp, err := c.Get(ctx, uri, nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokenManager == nil {
		return "", nil
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	return token, nil
}

// resolve joins a relative path to the base URL and keeps absolute locators
// as they are. Query values are merged into any query already in path.
func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing request path %q: %w", path, err)
	}

	var target *url.URL

	if ref.IsAbs() {
		target = ref
	} else {
		joined := *c.baseURL
		joined.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
		joined.RawQuery = ref.RawQuery
		target = &joined
	}

	if len(query) > 0 {
		merged := target.Query()

		for key, values := range query {
			for _, value := range values {
				merged.Add(key, value)
			}
		}

		target.RawQuery = merged.Encode()
	}

	return target, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch typed := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return typed, nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}

		return encoded, nil
	}
}

// retryConnectionFailures retries only when no response was obtained.
// Status-based failures are never retried here.
func retryConnectionFailures(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err == nil {
		return false, nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, nil, err)
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		return http.StatusText(resp.StatusCode)
	}

	return reason
}

func redact(target *url.URL) string {
	redacted := *target
	redacted.User = nil

	return redacted.String()
}

// leveledLogger adapts capi.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger capi.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fields(keysAndValues))
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, fields(keysAndValues))
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fields(keysAndValues))
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(keysAndValues)/2) //nolint:mnd // key/value pairs

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}

		result[key] = keysAndValues[i+1]
	}

	return result
}
