//go:build integration

package integration

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	APIEndpoint  string
	ClientID     string
	ClientSecret string
	Org          string
	Space        string
	Offering     string
	Plan         string
	AppGUID      string
	Provision    bool
	BinaryPath   string
	Verbose      bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		APIEndpoint:  os.Getenv("CF_API"),
		ClientID:     os.Getenv("CF_CLIENT_ID"),
		ClientSecret: os.Getenv("CF_CLIENT_SECRET"),
		Org:          os.Getenv("CF_ORG"),
		Space:        os.Getenv("CF_SPACE"),
		Offering:     os.Getenv("CF_OFFERING"),
		Plan:         os.Getenv("CF_PLAN"),
		AppGUID:      os.Getenv("CF_APP_GUID"),
		Provision:    os.Getenv("CF_PROVISION") == "true",
		BinaryPath:   getBinaryPath(),
		Verbose:      os.Getenv("CAPI_VERBOSE") == "true",
	}
}

// getBinaryPath determines the path to the capi-deployer binary
func getBinaryPath() string {
	if path := os.Getenv("CAPI_DEPLOYER_BINARY_PATH"); path != "" {
		return path
	}

	// Try common locations
	candidates := []string{
		"../../capi-deployer",
		"./capi-deployer",
		"../capi-deployer",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "capi-deployer" // Fallback to PATH
}

// SkipIfMissingConfig skips test if required config is missing
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.APIEndpoint == "" || config.ClientID == "" {
		t.Skip("CF_API or CF_CLIENT_ID not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.BinaryPath); err != nil {
		t.Skipf("capi-deployer binary not found at %s, skipping integration test", config.BinaryPath)
	}
}

// CommandRunner provides utilities for running capi-deployer commands
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{
		config: config,
		t:      t,
	}
}

// Run executes a capi-deployer command with JSON output and returns its output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	full := append([]string{"--api", runner.config.APIEndpoint, "--client-id", runner.config.ClientID, "--output", "json"}, args...)

	cmd := exec.Command(runner.config.BinaryPath, full...)
	cmd.Env = append(os.Environ(), "CAPI_DEPLOYER_CLIENT_SECRET="+runner.config.ClientSecret)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.BinaryPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// GenerateTestName creates a unique test resource name
func GenerateTestName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().Unix())
}
