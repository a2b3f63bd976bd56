// Package cfclient provides the main entry point for creating deployer clients.
package cfclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fivetwenty-io/capi-deployer/internal/client"
	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// rootInfo is the subset of the API root document ("/") used for discovery.
type rootInfo struct {
	Links struct {
		UAA      link `json:"uaa"`
		Login    link `json:"login"`
		LogCache link `json:"log_cache"`
	} `json:"links"`
}

type link struct {
	Href string `json:"href"`
}

// New creates a client with automatic UAA and log-cache discovery. config is
// copied; the caller's value is not modified.
func New(ctx context.Context, config *capi.Config) (capi.Client, error) {
	if config == nil {
		return nil, capi.ErrConfigRequired
	}

	if config.APIEndpoint == "" {
		return nil, capi.ErrAPIEndpointRequired
	}

	cfg := *config
	cfg.APIEndpoint = normalizeEndpoint(cfg.APIEndpoint)

	if cfg.SkipTLSVerify && !isDevelopmentEnvironment() {
		return nil, fmt.Errorf("%w (set CAPI_DEV_MODE=true)", capi.ErrSkipTLSOnlyInDev)
	}

	if (needsAuth(&cfg) && cfg.TokenURL == "") || cfg.LogCacheEndpoint == "" {
		err := discover(ctx, &cfg)
		if err != nil {
			return nil, err
		}
	}

	c, err := client.New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

// normalizeEndpoint trims a trailing slash and adds https:// when no scheme is given.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}

// discover fills TokenURL and LogCacheEndpoint from the API root. Only a
// missing token URL is fatal; log-cache stays unavailable when undiscoverable.
func discover(ctx context.Context, cfg *capi.Config) error {
	tokenRequired := needsAuth(cfg) && cfg.TokenURL == ""

	info, err := fetchRootInfo(ctx, createDiscoveryHTTPClient(cfg.SkipTLSVerify), cfg.APIEndpoint)
	if err != nil {
		if tokenRequired {
			return fmt.Errorf("discovering UAA endpoint: %w", err)
		}

		if cfg.Logger != nil {
			cfg.Logger.Warn("log-cache discovery failed", map[string]interface{}{"error": err.Error()})
		}

		return nil
	}

	if tokenRequired {
		uaaURL := info.Links.UAA.Href
		if uaaURL == "" {
			uaaURL = info.Links.Login.Href
		}

		if uaaURL == "" {
			return capi.ErrNoUAAOrLoginURL
		}

		cfg.TokenURL = strings.TrimSuffix(uaaURL, "/") + "/oauth/token"
	}

	if cfg.LogCacheEndpoint == "" {
		cfg.LogCacheEndpoint = strings.TrimSuffix(info.Links.LogCache.Href, "/")
	}

	return nil
}

// needsAuth checks if the config requires a token endpoint.
func needsAuth(config *capi.Config) bool {
	return config.AccessToken == "" &&
		(config.ClientID != "" || config.RefreshToken != "")
}

// isDevelopmentEnvironment checks if we're in a development environment.
func isDevelopmentEnvironment() bool {
	devMode := os.Getenv("CAPI_DEV_MODE")

	return devMode == "true" || devMode == "1"
}

// createDiscoveryHTTPClient creates an HTTP client for root discovery.
// skipTLS has already been checked against development mode.
func createDiscoveryHTTPClient(skipTLS bool) *http.Client {
	httpClient := &http.Client{
		Timeout: constants.ShortHTTPTimeout,
	}

	if skipTLS {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- Protected by development environment check in New
		}
	}

	return httpClient
}

// fetchRootInfo fetches and parses the root info from the API endpoint.
func fetchRootInfo(ctx context.Context, httpClient *http.Client, apiEndpoint string) (*rootInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiEndpoint+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getting root info: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))

		return nil, fmt.Errorf("%w with status %d: %s", capi.ErrRootInfoRequestFailed, resp.StatusCode, string(body))
	}

	var info rootInfo

	err = json.NewDecoder(resp.Body).Decode(&info)
	if err != nil {
		return nil, fmt.Errorf("parsing root info: %w", err)
	}

	return &info, nil
}

// NewWithEndpoint creates a new client with just an API endpoint (no auth).
func NewWithEndpoint(ctx context.Context, endpoint string) (capi.Client, error) {
	return New(ctx, &capi.Config{
		APIEndpoint: endpoint,
	})
}

// NewWithToken creates a new client with an API endpoint and access token.
func NewWithToken(ctx context.Context, endpoint, token string) (capi.Client, error) {
	return New(ctx, &capi.Config{
		APIEndpoint: endpoint,
		AccessToken: token,
	})
}

// NewWithClientCredentials creates a new client using OAuth2 client credentials.
func NewWithClientCredentials(ctx context.Context, endpoint, clientID, clientSecret string) (capi.Client, error) {
	return New(ctx, &capi.Config{
		APIEndpoint:  endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}
