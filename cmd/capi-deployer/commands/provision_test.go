package commands

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

func TestNewProvisionCommand(t *testing.T) {
	cmd := NewProvisionCommand()
	assert.Equal(t, "provision NAME", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Args)

	flags := []string{"offering", "plan", "alternative", "space-guid", "org", "space", "parameters-file", "tags", "wait", "wait-timeout"}
	for _, flagName := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flagName), "Flag %s should exist", flagName)
	}

	waitFlag := cmd.Flags().Lookup("wait")
	assert.Equal(t, "w", waitFlag.Shorthand)
	assert.Equal(t, "false", waitFlag.DefValue)
}

func TestLoadParameters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), constants.ConfigFilePerm))

		return path
	}

	tests := []struct {
		name     string
		path     string
		expected map[string]interface{}
		wantErr  bool
	}{
		{name: "no file", path: ""},
		{
			name:     "yaml",
			path:     write("params.yml", "db_size: 10\nextensions:\n  - postgis\n"),
			expected: map[string]interface{}{"db_size": 10, "extensions": []interface{}{"postgis"}},
		},
		{
			name:     "json",
			path:     write("params.json", `{"ha": true, "backup": {"window": "02:00"}}`),
			expected: map[string]interface{}{"ha": true, "backup": map[string]interface{}{"window": "02:00"}},
		},
		{name: "list is rejected", path: write("list.yml", "- a\n- b\n"), wantErr: true},
		{name: "empty is rejected", path: write("empty.yml", ""), wantErr: true},
		{name: "missing file", path: filepath.Join(dir, "missing.yml"), wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			parameters, err := loadParameters(testCase.path)
			if testCase.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.expected, parameters)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestProvisionCommand_WaitsForJob(t *testing.T) {
	var (
		mu      sync.Mutex
		created object
	)

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v3/service_plans":
			writeJSON(t, w, http.StatusOK, object{
				"pagination": object{"next": nil},
				"resources": []object{{
					"guid": testPlanGUID,
					"name": "small",
					"relationships": object{
						"service_offering": object{"data": object{"guid": testOfferingGUID}},
					},
				}},
				"included": object{
					"service_offerings": []object{{"guid": testOfferingGUID, "name": "postgresql"}},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v3/service_instances":
			mu.Lock()
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			mu.Unlock()
			w.Header().Set("Location", "/v3/jobs/job-1")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/v3/jobs/job-1":
			writeJSON(t, w, http.StatusOK, object{"guid": "job-1", "operation": "service_instance.create", "state": "COMPLETE"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	withSettings(t, object{
		"api":       server.URL,
		"log-cache": server.URL,
		"token":     "test-token",
		"output":    "json",
		"log-level": "error",
	})

	parameters := filepath.Join(t.TempDir(), "params.yml")
	require.NoError(t, os.WriteFile(parameters, []byte("db_size: 10\n"), constants.ConfigFilePerm))

	stdout, err := execute(t, NewProvisionCommand(),
		"orders-db",
		"--offering", "postgresql",
		"--plan", "small",
		"--space-guid", testSpaceGUID,
		"--parameters-file", parameters,
		"--tags", "orders,db",
		"--wait",
	)
	require.NoError(t, err)

	var output map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &output))

	assert.Equal(t, "orders-db", output["name"])
	assert.Equal(t, "postgresql", output["offering"])
	assert.Equal(t, testPlanGUID, output["plan_guid"])
	assert.Equal(t, "/v3/jobs/job-1", output["job_url"])
	assert.Equal(t, "COMPLETE", output["job_state"])

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "orders-db", created["name"])
	assert.Equal(t, "managed", created["type"])
	assert.Equal(t, []interface{}{"orders", "db"}, created["tags"])
	assert.Equal(t, object{"db_size": float64(10)}, created["parameters"])
}

func TestProvisionCommand_RequiresSpace(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	withSettings(t, object{"api": server.URL, "log-cache": server.URL, "token": "test-token"})

	_, err := execute(t, NewProvisionCommand(), "orders-db", "--offering", "postgresql", "--plan", "small", "--org", "acme")
	require.ErrorIs(t, err, constants.ErrSpaceSelectorRequired)
}

func TestProvisionManifestCommand_PartialFailure(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v3/service_plans":
			writeJSON(t, w, http.StatusOK, object{
				"pagination": object{"next": nil},
				"resources": []object{{
					"guid":          testPlanGUID,
					"name":          "small",
					"relationships": object{"service_offering": object{"data": object{"guid": testOfferingGUID}}},
				}},
				"included": object{"service_offerings": []object{{"guid": testOfferingGUID, "name": "postgresql"}}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v3/service_instances":
			w.Header().Set("Location", "/v3/jobs/job-1")
			w.WriteHeader(http.StatusAccepted)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	withSettings(t, object{"api": server.URL, "log-cache": server.URL, "token": "test-token", "output": "json"})

	manifest := filepath.Join(t.TempDir(), "services.yml")
	require.NoError(t, os.WriteFile(manifest, []byte(`services:
  - name: orders-db
    offering: postgresql
    plan: small
  - name: analytics-db
    offering: postgresql
    plan: xlarge
`), constants.ConfigFilePerm))

	stdout, err := execute(t, NewProvisionManifestCommand(), manifest, "--space-guid", testSpaceGUID)
	require.ErrorIs(t, err, capi.ErrBatchFailed)
	require.ErrorIs(t, err, capi.ErrServicePlanNotFound)

	var results []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)

	assert.Equal(t, "orders-db", results[0]["id"])
	assert.Equal(t, true, results[0]["success"])
	assert.Equal(t, "analytics-db", results[1]["id"])
	assert.Equal(t, false, results[1]["success"])
	assert.NotEmpty(t, results[1]["error"])
}
