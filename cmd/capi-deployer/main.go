package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/capi-deployer/cmd/capi-deployer/commands"
	"github.com/fivetwenty-io/capi-deployer/internal/constants"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "capi-deployer",
	Short: "Cloud Foundry service deployer",
	Long: `A command-line interface for provisioning Cloud Foundry services.

It creates managed service instances with fallback offerings, checks space
permissions and reads recent application logs from log-cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringP("config", "c", "", "config file (default is $HOME/.capi-deployer/config.yml)")
	flags.StringP("api", "a", "", "API endpoint URL")
	flags.String("log-cache", "", "log-cache endpoint URL (discovered when empty)")
	flags.StringP("token", "t", "", "authentication token")
	flags.String("client-id", "", "OAuth2 client ID")
	flags.String("client-secret", "", "OAuth2 client secret (prompted when a client ID is given)")
	flags.String("refresh-token", "", "OAuth2 refresh token")
	flags.String("token-url", "", "OAuth2 token endpoint (discovered when empty)")
	flags.Duration("http-timeout", constants.DefaultHTTPTimeout, "timeout of a single HTTP exchange")
	flags.Int("retry-max", constants.DefaultRetryMax, "retries after a connection failure")
	flags.Duration("developer-cache-ttl", constants.DefaultSpaceDeveloperCacheTTL, "how long a space's developer list is trusted")
	flags.String("catalog-api-version", constants.APIVersionV3, "API dialect used to read the catalog (v2, v3)")
	flags.Bool("dummy-tokens-enabled", false, "authorize users presenting the dummy token")
	flags.String("dummy-token", constants.DefaultDummyToken, "dummy token value")
	flags.String("nats-url", "", "NATS server for audit events")
	flags.String("audit-subject", constants.DefaultAuditSubject, "NATS subject prefix for audit events")
	flags.StringP("output", "o", "", "output format (table, json, yaml); table on a terminal, json otherwise")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.Bool("skip-ssl-validation", false, "skip SSL certificate validation (requires CAPI_DEV_MODE)")

	// Bind flags to viper
	_ = viper.BindPFlags(flags)

	// Add commands
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewProvisionCommand())
	rootCmd.AddCommand(commands.NewProvisionManifestCommand())
	rootCmd.AddCommand(commands.NewCheckAccessCommand())
	rootCmd.AddCommand(commands.NewLogsCommand())
	rootCmd.AddCommand(commands.NewOfferingsCommand())
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Create config directory if it doesn't exist
		configDir := filepath.Join(home, constants.ConfigDirName)
		if err := os.MkdirAll(configDir, constants.ConfigDirPerm); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
		}

		// Search config in ~/.capi-deployer/config.yml
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match, e.g. CAPI_DEPLOYER_CLIENT_SECRET
	viper.SetEnvPrefix(constants.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
