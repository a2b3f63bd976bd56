package capi

import (
	"context"
	"time"
)

// ServiceProvisioner creates managed service instances, falling back to
// alternative offerings when the preferred one is forbidden.
type ServiceProvisioner interface {
	// Provision validates request, then creates the instance from the first
	// candidate offering that provides request.Plan and does not answer 403.
	Provision(ctx context.Context, request *ServiceProvisionRequest) (*ProvisionResult, error)
}

// AuthorizationChecker decides whether a user may act on a space.
type AuthorizationChecker interface {
	// IsAuthorized returns (false, *PermissionCheckError) when a lookup fails,
	// so a failed check is never mistaken for a grant.
	IsAuthorized(ctx context.Context, user *UserInfo, spaceGUID string, readOnly bool) (bool, error)
	IsAuthorizedForSpace(ctx context.Context, user *UserInfo, orgName, spaceName string, readOnly bool) (bool, error)
	EnsureAuthorized(ctx context.Context, user *UserInfo, spaceGUID, action string, readOnly bool) error
}

// LogIncrementalFetcher reads recent application logs newer than an offset.
type LogIncrementalFetcher interface {
	GetRecentLogs(ctx context.Context, appGUID string, offset *LogOffset) ([]LogRecord, error)
	// GetRecentLogsSafely never fails; errors are logged and an empty result returned.
	GetRecentLogsSafely(ctx context.Context, appGUID string, offset *LogOffset) []LogRecord
}

// CatalogClient reads the service catalog.
type CatalogClient interface {
	ListOfferings(ctx context.Context) ([]OfferingCatalogEntry, error)
}

// SpacesClient resolves spaces by name.
type SpacesClient interface {
	FindOrganization(ctx context.Context, name string) (*Organization, error)
	FindSpace(ctx context.Context, orgName, spaceName string) (*Space, error)
}

// RolesClient reads role assignments.
type RolesClient interface {
	// ListSpaceDevelopers returns the user GUIDs of the space's developers.
	ListSpaceDevelopers(ctx context.Context, spaceGUID string) ([]string, error)
	ListSpaceRoles(ctx context.Context, spaceGUID, userGUID string, types ...RoleType) ([]Role, error)
}

// JobsClient follows asynchronous jobs such as service instance creation.
type JobsClient interface {
	Get(ctx context.Context, locator string) (*Job, error)
	// PollUntilComplete waits for COMPLETE or FAILED; a failed job is an error.
	PollUntilComplete(ctx context.Context, locator string) (*Job, error)
}

// Client aggregates the deployer-facing components.
type Client interface {
	Provisioner() ServiceProvisioner
	Authorization() AuthorizationChecker
	Logs() LogIncrementalFetcher
	Catalog() CatalogClient
	Spaces() SpacesClient
	Roles() RolesClient
	Jobs() JobsClient
	// Close releases background connections such as the audit stream.
	Close()
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, map[string]interface{}) {}
func (noopLogger) Info(string, map[string]interface{})  {}
func (noopLogger) Warn(string, map[string]interface{})  {}
func (noopLogger) Error(string, map[string]interface{}) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger {
	return noopLogger{}
}

func loggerOrNoop(logger Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}

	return logger
}

// Config represents client configuration for building a capi.Client.
//
// # Authentication precedence
//
// The following precedence is applied by cfclient.New:
//  1. AccessToken: if set, it is used directly as a static Bearer token.
//  2. ClientID/ClientSecret: uses the OAuth2 client_credentials grant against
//     TokenURL.
//  3. RefreshToken: uses the OAuth2 refresh grant with the default CF client
//     ID ("cf").
//  4. No credentials: requests are sent without authentication.
//
// # Endpoint discovery
//
// If TokenURL or LogCacheEndpoint is empty, cfclient.New reads the API root
// ("/") and takes links.uaa (or links.login) and links.log_cache from it.
//
// # Timeouts and retries
//
// Per-request deadlines should be controlled via the context passed to each
// operation. RetryMax/RetryWaitMin/RetryWaitMax tune the resilient executor;
// only connection-level failures are retried, never HTTP status failures.
type Config struct {
	// Required fields
	// APIEndpoint: base URL for the CF API (e.g., "https://api.example.com").
	// cfclient.New normalizes this value by trimming a trailing slash and
	// adding "https://" if no scheme is present.
	APIEndpoint string
	// LogCacheEndpoint: base URL for log-cache. Discovered from the API root when empty.
	LogCacheEndpoint string

	// Authentication options (provide one)
	// AccessToken: if set, used directly as a Bearer token.
	AccessToken string
	// ClientID: OAuth2 client ID for the client_credentials grant.
	ClientID string
	// ClientSecret: OAuth2 client secret used with ClientID.
	ClientSecret string
	// RefreshToken: refresh token exchanged for access tokens.
	RefreshToken string
	// TokenURL: full OAuth2 token endpoint. If empty and authentication is
	// required, cfclient.New discovers it from the API root.
	TokenURL string

	// Optional configurations
	// HTTPTimeout: timeout applied to every single HTTP exchange.
	HTTPTimeout time.Duration
	// RetryMax: maximum number of retries after a connection failure. Zero
	// uses the default; a negative value disables retries.
	RetryMax int
	// RetryWaitMin: first wait between retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: upper bound of the wait. Equal to RetryWaitMin means a fixed wait.
	RetryWaitMax time.Duration
	// SpaceDeveloperCacheTTL: how long a space's developer list is trusted.
	SpaceDeveloperCacheTTL time.Duration
	// CatalogAPIVersion: "v3" (default) or "v2", the dialect used to read the service catalog.
	CatalogAPIVersion string
	// DummyTokensEnabled: when true, users presenting DummyToken are authorized
	// everywhere. Intended for test landscapes only.
	DummyTokensEnabled bool
	// DummyToken: the token value recognized when DummyTokensEnabled is set.
	DummyToken string
	// NATSURL: when set, security incidents and provisioning events are published there.
	NATSURL string
	// AuditSubject: NATS subject prefix for audit events.
	AuditSubject string
	// SkipTLSVerify: disables certificate verification. cfclient.New only
	// accepts it when CAPI_DEV_MODE is "true" or "1".
	SkipTLSVerify bool
	// Debug: enables verbose HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger used by every component.
	Logger Logger
	// Metrics: optional Prometheus collectors. Nil disables metrics.
	Metrics *Metrics
	// UserAgent: overrides the default User-Agent header sent by the client.
	UserAgent string
}
