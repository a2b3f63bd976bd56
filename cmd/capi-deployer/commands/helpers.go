package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/logging"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
	"github.com/fivetwenty-io/capi-deployer/pkg/cfclient"
)

// Common string constants used throughout the commands package.
const (
	NotAvailable = "N/A"
	Yes          = "yes"
	No           = "no"

	defaultJSONIndent = "  "
)

// Runtime bundles what a command needs besides its flags.
type Runtime struct {
	Client   capi.Client
	Logger   *logging.Logger
	Registry *prometheus.Registry
}

// Close releases the client.
func (r *Runtime) Close() {
	if r.Client != nil {
		r.Client.Close()
	}
}

// newLogger builds the CLI logger from log-level, log-format and verbose.
func newLogger(output io.Writer) (*logging.Logger, error) {
	level := viper.GetString("log-level")
	if viper.GetBool("verbose") {
		level = "debug"
	}

	return logging.New(logging.Options{
		Level:  level,
		Format: logging.Format(viper.GetString("log-format")),
		Output: output,
	})
}

// buildConfig maps viper settings onto a capi.Config.
func buildConfig(logger capi.Logger, metrics *capi.Metrics) (*capi.Config, error) {
	endpoint := viper.GetString("api")
	if endpoint == "" {
		return nil, constants.ErrNoAPIEndpoint
	}

	return &capi.Config{
		APIEndpoint:            endpoint,
		LogCacheEndpoint:       viper.GetString("log-cache"),
		AccessToken:            viper.GetString("token"),
		ClientID:               viper.GetString("client-id"),
		ClientSecret:           viper.GetString("client-secret"),
		RefreshToken:           viper.GetString("refresh-token"),
		TokenURL:               viper.GetString("token-url"),
		HTTPTimeout:            viper.GetDuration("http-timeout"),
		RetryMax:               viper.GetInt("retry-max"),
		SpaceDeveloperCacheTTL: viper.GetDuration("developer-cache-ttl"),
		CatalogAPIVersion:      viper.GetString("catalog-api-version"),
		DummyTokensEnabled:     viper.GetBool("dummy-tokens-enabled"),
		DummyToken:             viper.GetString("dummy-token"),
		NATSURL:                viper.GetString("nats-url"),
		AuditSubject:           viper.GetString("audit-subject"),
		SkipTLSVerify:          viper.GetBool("skip-ssl-validation"),
		Debug:                  viper.GetBool("verbose"),
		UserAgent:              "capi-deployer",
		Logger:                 logger,
		Metrics:                metrics,
	}, nil
}

// newRuntime builds the logger, metrics registry and client for a command.
func newRuntime(ctx context.Context, stderr io.Writer) (*Runtime, error) {
	logger, err := newLogger(stderr)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()

	metrics, err := capi.NewMetrics(constants.MetricsNamespace, registry)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	config, err := buildConfig(logger, metrics)
	if err != nil {
		return nil, err
	}

	if config.ClientID != "" && config.ClientSecret == "" && config.AccessToken == "" {
		secret, err := promptSecret(stderr, "Client secret: ")
		if err != nil {
			return nil, err
		}

		config.ClientSecret = secret
	}

	client, err := cfclient.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Runtime{Client: client, Logger: logger, Registry: registry}, nil
}

// promptSecret reads a secret from the terminal without echo.
func promptSecret(prompt io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // stdin descriptor fits in int

	if !term.IsTerminal(fd) {
		return "", constants.ErrSecretPromptNoTTY
	}

	_, _ = fmt.Fprint(prompt, label)

	secret, err := term.ReadPassword(fd)

	_, _ = fmt.Fprintln(prompt)

	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	return strings.TrimSpace(string(secret)), nil
}

// outputFormat returns the configured format. Without one, an interactive
// stdout gets a table and anything else gets JSON.
func outputFormat(stdout io.Writer) (string, error) {
	format := strings.ToLower(viper.GetString("output"))
	if format == "" {
		if isTerminal(stdout) {
			return constants.FormatTable, nil
		}

		return constants.FormatJSON, nil
	}

	switch format {
	case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %s", constants.ErrUnknownOutputFormat, format)
	}
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)

	return ok && term.IsTerminal(int(file.Fd())) //nolint:gosec // descriptor fits in int
}

// render writes value as JSON or YAML, or calls table for the table format.
func render(stdout io.Writer, value interface{}, table func(*tablewriter.Table) error) error {
	format, err := outputFormat(stdout)
	if err != nil {
		return err
	}

	switch format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", defaultJSONIndent)

		return encoder.Encode(value)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(stdout)
		defer func() { _ = encoder.Close() }()

		return encoder.Encode(value)
	default:
		writer := tablewriter.NewWriter(stdout)

		err := table(writer)
		if err != nil {
			return err
		}

		err = writer.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func yesNo(value bool) string {
	if value {
		return Yes
	}

	return No
}

func orNotAvailable(value string) string {
	if value == "" {
		return NotAvailable
	}

	return value
}
