package client

import (
	"context"
	"crypto/tls"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/fivetwenty-io/capi-deployer/internal/audit"
	"github.com/fivetwenty-io/capi-deployer/internal/auth"
	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// Client implements the capi.Client interface.
type Client struct {
	httpClient   *http.Client
	tokenManager http.TokenManager
	executor     *capi.Executor
	logger       capi.Logger
	auditor      *audit.Auditor

	catalog       *CatalogClient
	spaces        *SpacesClient
	roles         *RolesClient
	jobs          *JobsClient
	provisioner   *Provisioner
	authorization *AuthorizationChecker
	logs          *LogFetcher
}

// New creates a client from config. config.APIEndpoint must already be
// normalized; cfclient.New does that and discovers TokenURL and
// LogCacheEndpoint.
func New(config *capi.Config) (*Client, error) {
	if config.APIEndpoint == "" {
		return nil, capi.ErrAPIEndpointRequired
	}

	tokenManager, err := createTokenManager(config)
	if err != nil {
		return nil, err
	}

	var auditor *audit.Auditor

	if config.NATSURL != "" {
		auditor, err = audit.Connect(config.NATSURL, config.AuditSubject, audit.WithLogger(config.Logger))
		if err != nil {
			return nil, err
		}
	}

	return NewWithTokenManager(config, tokenManager, auditor)
}

// NewWithTokenManager creates a client with a custom token manager and an
// optional auditor. A nil tokenManager sends unauthenticated requests.
func NewWithTokenManager(config *capi.Config, tokenManager http.TokenManager, auditor *audit.Auditor) (*Client, error) {
	if config.APIEndpoint == "" {
		return nil, capi.ErrAPIEndpointRequired
	}

	logger := config.Logger
	if logger == nil {
		logger = capi.NoopLogger()
	}

	httpOpts := createHTTPClientOptions(config)
	httpClient := http.NewClient(config.APIEndpoint, tokenManager, httpOpts...)

	executor := capi.NewExecutor(
		capi.RetryConfigFromConfig(config),
		capi.WithExecutorLogger(logger),
		capi.WithExecutorMetrics(config.Metrics),
	)

	catalog, err := NewCatalogClient(httpClient, executor, config.CatalogAPIVersion, logger)
	if err != nil {
		return nil, fmt.Errorf("creating catalog client: %w", err)
	}

	client := &Client{
		httpClient:   httpClient,
		tokenManager: tokenManager,
		executor:     executor,
		logger:       logger,
		auditor:      auditor,
		catalog:      catalog,
		spaces:       NewSpacesClient(httpClient, executor, logger),
		roles:        NewRolesClient(httpClient, executor, logger),
		jobs:         NewJobsClient(httpClient, executor),
	}

	client.provisioner = NewProvisioner(
		catalog,
		NewServiceInstancesClient(httpClient),
		executor,
		WithProvisionerLogger(logger),
		WithProvisionerMetrics(config.Metrics),
		WithProvisionerAuditor(auditor),
	)

	authOpts := []AuthorizationOption{
		WithAuthorizationLogger(logger),
		WithAuthorizationMetrics(config.Metrics),
		WithAuthorizationAuditor(auditor),
	}

	if config.DummyTokensEnabled {
		authOpts = append(authOpts, WithDummyToken(config.DummyToken))
	}

	client.authorization = NewAuthorizationChecker(client.roles, client.spaces, config.SpaceDeveloperCacheTTL, authOpts...)

	var reader logReader = unavailableLogReader{}

	if config.LogCacheEndpoint != "" {
		logCacheClient := http.NewClient(config.LogCacheEndpoint, tokenManager, httpOpts...)
		reader = NewLogCacheClient(logCacheClient, executor, logger)
	}

	client.logs = NewLogFetcher(reader, logger)

	return client, nil
}

// Provisioner implements capi.Client.Provisioner.
func (c *Client) Provisioner() capi.ServiceProvisioner {
	return c.provisioner
}

// Authorization implements capi.Client.Authorization.
func (c *Client) Authorization() capi.AuthorizationChecker {
	return c.authorization
}

// Logs implements capi.Client.Logs.
func (c *Client) Logs() capi.LogIncrementalFetcher {
	return c.logs
}

// Catalog implements capi.Client.Catalog.
func (c *Client) Catalog() capi.CatalogClient {
	return c.catalog
}

// Spaces implements capi.Client.Spaces.
func (c *Client) Spaces() capi.SpacesClient {
	return c.spaces
}

// Roles implements capi.Client.Roles.
func (c *Client) Roles() capi.RolesClient {
	return c.roles
}

// Jobs implements capi.Client.Jobs.
func (c *Client) Jobs() capi.JobsClient {
	return c.jobs
}

// GetTokenManager returns the token manager for this client.
func (c *Client) GetTokenManager() http.TokenManager {
	return c.tokenManager
}

// Close implements capi.Client.Close.
func (c *Client) Close() {
	c.auditor.Close()
}

// createTokenManager picks the token source. A static token wins over
// client credentials, which win over a refresh token.
func createTokenManager(config *capi.Config) (http.TokenManager, error) {
	if config.AccessToken != "" {
		return auth.NewStaticTokenProvider(config.AccessToken), nil
	}

	if (config.ClientID != "" && config.ClientSecret != "") || config.RefreshToken != "" {
		provider, err := auth.NewOAuth2TokenProvider(&auth.OAuth2Config{
			TokenURL:     getTokenURL(config),
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RefreshToken: config.RefreshToken,
			HTTPClient:   newStdClient(config, constants.ShortHTTPTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("creating token provider: %w", err)
		}

		return provider, nil
	}

	return nil, nil //nolint:nilnil // no credentials means unauthenticated requests
}

// getTokenURL returns token URL from config or fallback.
func getTokenURL(config *capi.Config) string {
	if config.TokenURL != "" {
		return config.TokenURL
	}

	return config.APIEndpoint + "/oauth/token"
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *capi.Config) []http.Option {
	var httpOpts []http.Option

	if config.SkipTLSVerify {
		httpOpts = append(httpOpts, http.WithHTTPClient(newStdClient(config, constants.DefaultHTTPTimeout)))
	}

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.HTTPTimeout))
	}

	if config.Metrics != nil {
		httpOpts = append(httpOpts, http.WithMetrics(config.Metrics))
	}

	return httpOpts
}

func newStdClient(config *capi.Config, timeout time.Duration) *nethttp.Client {
	client := &nethttp.Client{Timeout: timeout}

	if config.SkipTLSVerify {
		client.Transport = &nethttp.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- cfclient.New only allows this in development mode
		}
	}

	return client
}

type unavailableLogReader struct{}

func (unavailableLogReader) Read(context.Context, string) ([]capi.LogRecord, error) {
	return nil, capi.ErrNoLogCacheURL
}
