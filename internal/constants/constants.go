package constants

import "time"

// CLI settings.
const (
	// ConfigDirName is the directory under $HOME holding config.yml.
	ConfigDirName = ".capi-deployer"

	// EnvPrefix prefixes environment overrides, e.g. CAPI_DEPLOYER_API.
	EnvPrefix = "CAPI_DEPLOYER"

	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace = "capi_deployer"

	// DefaultLogsInterval is the polling interval of logs --follow.
	DefaultLogsInterval = 5 * time.Second
)

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// MaxErrorBodyBytes caps how much of a failed discovery response is quoted.
	MaxErrorBodyBytes = 4096

	// ShortHTTPTimeout is used for quick operations such as root discovery.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits used by the resilient operation executor.
const (
	// DefaultRetryMax is the default number of retries after the first attempt.
	DefaultRetryMax = 3

	// DefaultRetryWaitMin is the initial wait between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax caps the wait between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExponentialBackoffBase is the multiplier applied between consecutive waits.
	ExponentialBackoffBase = 2

	// TransportRetryMax is the number of retries done inside the transport itself.
	// The executor owns retries, so the transport does none by default.
	TransportRetryMax = 0
)

// Cache settings.
const (
	// DefaultSpaceDeveloperCacheTTL is how long a space's developer set is trusted.
	DefaultSpaceDeveloperCacheTTL = 5 * time.Minute
)

// Pagination settings.
const (
	// StandardPageSize is the page size requested from collection endpoints.
	StandardPageSize = 100

	// MaxV2PageSize is the largest page the v2 API accepts.
	MaxV2PageSize = 100
)

// Log-cache settings.
const (
	// DefaultLogLimit is the number of envelopes read per recent-logs request.
	DefaultLogLimit = 1000
)

// Security settings.
const (
	// ScopeCloudControllerAdmin grants unrestricted access to every space.
	ScopeCloudControllerAdmin = "cloud_controller.admin"

	// DefaultDummyToken is the token value recognized when dummy tokens are enabled.
	DefaultDummyToken = "DUMMY"

	// DefaultAuditSubject is the NATS subject prefix for audit events.
	DefaultAuditSubject = "capi.deployer.audit"
)

// API versions.
const (
	// APIVersionV2 selects the v2 envelope dialect.
	APIVersionV2 = "v2"

	// APIVersionV3 selects the v3 flat dialect.
	APIVersionV3 = "v3"
)

// API path constants.
const (
	// APIPathServicePlans is the v3 service plans collection.
	APIPathServicePlans = "/v3/service_plans"

	// APIPathServiceInstances is the v3 service instances collection.
	APIPathServiceInstances = "/v3/service_instances"

	// APIPathRoles is the v3 roles collection.
	APIPathRoles = "/v3/roles"

	// APIPathOrganizations is the v3 organizations collection.
	APIPathOrganizations = "/v3/organizations"

	// APIPathSpaces is the v3 spaces collection.
	APIPathSpaces = "/v3/spaces"

	// APIPathV2Services is the v2 services collection.
	APIPathV2Services = "/v2/services"

	// APIPathV2Spaces is the v2 spaces collection.
	APIPathV2Spaces = "/v2/spaces"

	// APIPathLogCacheRead is the log-cache read endpoint, followed by the source ID.
	APIPathLogCacheRead = "/api/v1/read"
)

// Output formats.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// FormatTable for table output format.
	FormatTable = "table"
)

// Service instance types.
const (
	// ServiceInstanceTypeManaged is a broker-provisioned service instance.
	ServiceInstanceTypeManaged = "managed"
)

// Job polling.
const (
	// DefaultPollInterval is used for polling asynchronous jobs.
	DefaultPollInterval = 2 * time.Second

	// DefaultJobPollTimeout is the default timeout for job polling.
	DefaultJobPollTimeout = 5 * time.Minute

	// JobStateComplete marks a successfully finished job.
	JobStateComplete = "COMPLETE"

	// JobStateFailed marks a failed job.
	JobStateFailed = "FAILED"

	// JobStateProcessing marks a running job.
	JobStateProcessing = "PROCESSING"
)
