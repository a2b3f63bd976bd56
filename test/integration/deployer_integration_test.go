//go:build integration

package integration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type DeployerIntegrationSuite struct {
	suite.Suite

	config *TestConfig
	runner *CommandRunner
}

func (s *DeployerIntegrationSuite) SetupTest() {
	s.config = LoadTestConfig()
	s.config.SkipIfMissingConfig(s.T())
	s.runner = NewCommandRunner(s.config, s.T())
}

func (s *DeployerIntegrationSuite) TestVersion() {
	stdout, _, err := s.runner.Run("version")
	s.Require().NoError(err)

	var info map[string]string
	s.Require().NoError(json.Unmarshal([]byte(stdout), &info))
	s.NotEmpty(info["version"])
}

func (s *DeployerIntegrationSuite) TestOfferings() {
	stdout, stderr, err := s.runner.Run("offerings")
	s.Require().NoError(err, stderr)

	var entries []map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(stdout), &entries))

	for _, entry := range entries {
		s.NotEmpty(entry["offering_name"])
	}
}

func (s *DeployerIntegrationSuite) TestProvision() {
	if !s.config.Provision || s.config.Offering == "" || s.config.Plan == "" {
		s.T().Skip("CF_PROVISION, CF_OFFERING or CF_PLAN not set, skipping provisioning")
	}

	name := GenerateTestName("capi-deployer-it")

	stdout, stderr, err := s.runner.Run("provision", name,
		"--offering", s.config.Offering,
		"--plan", s.config.Plan,
		"--org", s.config.Org,
		"--space", s.config.Space,
		"--wait")
	s.Require().NoError(err, stderr)

	var result map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(stdout), &result))
	s.Equal(name, result["name"])
	s.Equal("COMPLETE", result["job_state"])
}

func (s *DeployerIntegrationSuite) TestLogs() {
	if s.config.AppGUID == "" {
		s.T().Skip("CF_APP_GUID not set, skipping logs")
	}

	_, stderr, err := s.runner.Run("logs", s.config.AppGUID)
	s.Require().NoError(err, stderr)
}

func TestDeployerIntegration(t *testing.T) {
	suite.Run(t, new(DeployerIntegrationSuite))
}

func TestCheckAccess_RequiresUser(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	_, stderr, err := NewCommandRunner(config, t).Run("check-access", "--org", config.Org, "--space", config.Space)
	require.Error(t, err)
	assert.Contains(t, stderr, "--user-id")
}
