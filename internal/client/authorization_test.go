package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/capi-deployer/internal/audit"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// fakeRoles returns developer lists in sequence; the last one repeats.
type fakeRoles struct {
	developers     [][]string
	developersErr  error
	roles          []capi.Role
	rolesErr       error
	developerCalls int
	roleCalls      int
	roleTypes      []capi.RoleType
}

func (r *fakeRoles) ListSpaceDevelopers(context.Context, string) ([]string, error) {
	r.developerCalls++

	if r.developersErr != nil {
		return nil, r.developersErr
	}

	index := r.developerCalls - 1
	if index >= len(r.developers) {
		index = len(r.developers) - 1
	}

	if index < 0 {
		return []string{}, nil
	}

	return r.developers[index], nil
}

func (r *fakeRoles) ListSpaceRoles(_ context.Context, _, _ string, types ...capi.RoleType) ([]capi.Role, error) {
	r.roleCalls++
	r.roleTypes = types

	return r.roles, r.rolesErr
}

type fakeSpaces struct {
	space *capi.Space
	err   error
}

func (s *fakeSpaces) FindOrganization(context.Context, string) (*capi.Organization, error) {
	return nil, s.err
}

func (s *fakeSpaces) FindSpace(context.Context, string, string) (*capi.Space, error) {
	return s.space, s.err
}

func alice() *capi.UserInfo {
	return &capi.UserInfo{ID: testAliceGUID, Name: "alice", Token: "token-alice"}
}

func newChecker(roles *fakeRoles, opts ...AuthorizationOption) *AuthorizationChecker {
	return NewAuthorizationChecker(roles, &fakeSpaces{}, time.Minute, opts...)
}

func TestAuthorizationChecker_Bypass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		user     *capi.UserInfo
		opts     []AuthorizationOption
		expected bool
	}{
		{
			name:     "dummy token when enabled",
			user:     &capi.UserInfo{ID: "not-a-guid", Token: "DUMMY"},
			opts:     []AuthorizationOption{WithDummyToken("")},
			expected: true,
		},
		{
			name:     "custom dummy token",
			user:     &capi.UserInfo{ID: testAliceGUID, Token: "let-me-in"},
			opts:     []AuthorizationOption{WithDummyToken("let-me-in")},
			expected: true,
		},
		{
			name:     "admin scope",
			user:     &capi.UserInfo{ID: testAliceGUID, Scopes: []string{"openid", "cloud_controller.admin"}},
			expected: true,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			roles := &fakeRoles{}
			checker := newChecker(roles, testCase.opts...)

			authorized, err := checker.IsAuthorized(context.Background(), testCase.user, testSpaceGUID, false)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, authorized)
			assert.Zero(t, roles.developerCalls)
		})
	}
}

func TestAuthorizationChecker_DummyTokenDisabled(t *testing.T) {
	t.Parallel()

	roles := &fakeRoles{developers: [][]string{{testBobGUID}}}
	checker := newChecker(roles)

	user := alice()
	user.Token = "DUMMY"

	authorized, err := checker.IsAuthorized(context.Background(), user, testSpaceGUID, false)
	require.NoError(t, err)
	assert.False(t, authorized)
	assert.Equal(t, 2, roles.developerCalls)
}

func TestAuthorizationChecker_CachedDeveloper(t *testing.T) {
	t.Parallel()

	roles := &fakeRoles{developers: [][]string{{testAliceGUID}}}
	checker := newChecker(roles)

	for range 3 {
		authorized, err := checker.IsAuthorized(context.Background(), alice(), testSpaceGUID, false)
		require.NoError(t, err)
		assert.True(t, authorized)
	}

	assert.Equal(t, 1, roles.developerCalls)
	assert.Equal(t, int64(2), checker.DeveloperCacheStats().Hits)
}

func TestAuthorizationChecker_RefreshGrantsNewDeveloper(t *testing.T) {
	t.Parallel()

	roles := &fakeRoles{developers: [][]string{{testBobGUID}, {testBobGUID, testAliceGUID}}}
	checker := newChecker(roles)

	authorized, err := checker.IsAuthorized(context.Background(), alice(), testSpaceGUID, false)
	require.NoError(t, err)
	assert.True(t, authorized)
	assert.Equal(t, 2, roles.developerCalls)
	assert.Zero(t, roles.roleCalls)
}

func TestAuthorizationChecker_ReadOnlyRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		readOnly  bool
		roles     []capi.Role
		expected  bool
		roleCalls int
	}{
		{
			name:      "auditor may read",
			readOnly:  true,
			roles:     []capi.Role{{Type: capi.RoleTypeSpaceAuditor, UserGUID: testAliceGUID}},
			expected:  true,
			roleCalls: 1,
		},
		{
			name:      "no read-only role",
			readOnly:  true,
			roles:     []capi.Role{},
			expected:  false,
			roleCalls: 1,
		},
		{
			name:      "role without a user does not match",
			readOnly:  true,
			roles:     []capi.Role{{Type: capi.RoleTypeSpaceAuditor}},
			expected:  false,
			roleCalls: 1,
		},
		{
			name:      "role of another user does not match",
			readOnly:  true,
			roles:     []capi.Role{{Type: capi.RoleTypeSpaceManager, UserGUID: testBobGUID}},
			expected:  false,
			roleCalls: 1,
		},
		{
			name:      "auditor may not write",
			readOnly:  false,
			roles:     []capi.Role{{Type: capi.RoleTypeSpaceAuditor, UserGUID: testAliceGUID}},
			expected:  false,
			roleCalls: 0,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			roles := &fakeRoles{developers: [][]string{{testBobGUID}}, roles: testCase.roles}
			checker := newChecker(roles)

			authorized, err := checker.IsAuthorized(context.Background(), alice(), testSpaceGUID, testCase.readOnly)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, authorized)
			assert.Equal(t, testCase.roleCalls, roles.roleCalls)

			if testCase.roleCalls > 0 {
				assert.Equal(t, []capi.RoleType{capi.RoleTypeSpaceAuditor, capi.RoleTypeSpaceManager}, roles.roleTypes)
			}
		})
	}
}

func TestAuthorizationChecker_FailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		roles *fakeRoles
	}{
		{name: "developer lookup fails", roles: &fakeRoles{developersErr: ErrTestSomeError}},
		{name: "role lookup fails", roles: &fakeRoles{developers: [][]string{{}}, rolesErr: ErrTestSomeError}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			checker := newChecker(testCase.roles)

			authorized, err := checker.IsAuthorized(context.Background(), alice(), testSpaceGUID, true)
			assert.False(t, authorized)

			var checkErr *capi.PermissionCheckError

			require.ErrorAs(t, err, &checkErr)
			require.ErrorIs(t, err, ErrTestSomeError)
			assert.Equal(t, testAliceGUID, checkErr.User)
		})
	}
}

func TestAuthorizationChecker_RejectsMalformedUserID(t *testing.T) {
	t.Parallel()

	roles := &fakeRoles{}
	checker := newChecker(roles)

	authorized, err := checker.IsAuthorized(context.Background(), &capi.UserInfo{ID: "alice"}, testSpaceGUID, false)
	assert.False(t, authorized)
	require.ErrorIs(t, err, capi.ErrInvalidUserID)
	assert.Zero(t, roles.developerCalls)
}

func TestAuthorizationChecker_IsAuthorizedForSpace(t *testing.T) {
	t.Parallel()

	space := &capi.Space{GUID: capi.ParseGUID(testSpaceGUID, nil), Name: "dev"}

	t.Run("resolves the space", func(t *testing.T) {
		t.Parallel()

		roles := &fakeRoles{developers: [][]string{{testAliceGUID}}}
		checker := NewAuthorizationChecker(roles, &fakeSpaces{space: space}, time.Minute)

		authorized, err := checker.IsAuthorizedForSpace(context.Background(), alice(), "org", "dev", false)
		require.NoError(t, err)
		assert.True(t, authorized)
	})

	t.Run("unknown space is a denial", func(t *testing.T) {
		t.Parallel()

		checker := NewAuthorizationChecker(&fakeRoles{}, &fakeSpaces{err: capi.ErrSpaceNotFound}, time.Minute)

		authorized, err := checker.IsAuthorizedForSpace(context.Background(), alice(), "org", "missing", false)
		require.NoError(t, err)
		assert.False(t, authorized)
	})

	t.Run("lookup failure is a check failure", func(t *testing.T) {
		t.Parallel()

		checker := NewAuthorizationChecker(&fakeRoles{}, &fakeSpaces{err: ErrTestSomeError}, time.Minute)

		authorized, err := checker.IsAuthorizedForSpace(context.Background(), alice(), "org", "dev", false)
		assert.False(t, authorized)

		var checkErr *capi.PermissionCheckError

		require.ErrorAs(t, err, &checkErr)
	})
}

func TestAuthorizationChecker_EnsureAuthorized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		spaceGUID string
		roles     *fakeRoles
		status    int
	}{
		{name: "granted", spaceGUID: testSpaceGUID, roles: &fakeRoles{developers: [][]string{{testAliceGUID}}}, status: 0},
		{name: "malformed space", spaceGUID: "not-a-space", roles: &fakeRoles{}, status: http.StatusNotFound},
		{name: "denied", spaceGUID: testSpaceGUID, roles: &fakeRoles{developers: [][]string{{testBobGUID}}}, status: http.StatusForbidden},
		{name: "check failed", spaceGUID: testSpaceGUID, roles: &fakeRoles{developersErr: ErrTestSomeError}, status: http.StatusUnauthorized},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			publisher := &recordingPublisher{}
			checker := newChecker(testCase.roles, WithAuthorizationAuditor(audit.New(publisher, "test")))

			err := checker.EnsureAuthorized(context.Background(), alice(), testCase.spaceGUID, "deploy", false)

			if testCase.status == 0 {
				require.NoError(t, err)
				assert.Empty(t, publisher.subjects)

				return
			}

			var authErr *capi.AuthorizationError

			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, testCase.status, authErr.StatusCode)
			assert.Equal(t, []string{"test.security"}, publisher.subjects)
		})
	}
}
