package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fivetwenty-io/capi-deployer/internal/audit"
	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// Authorization decision reasons, used in logs and metrics.
const (
	reasonDummyToken       = "dummy_token"
	reasonAdminScope       = "admin_scope"
	reasonSpaceDeveloper   = "space_developer"
	reasonRefreshedCache   = "space_developer_refreshed"
	reasonReadOnlyRole     = "read_only_role"
	reasonDenied           = "denied"
	reasonCheckFailed      = "check_failed"
	reasonSpaceUnavailable = "space_not_found"
)

// AuthorizationChecker implements capi.AuthorizationChecker.
type AuthorizationChecker struct {
	roles      capi.RolesClient
	spaces     capi.SpacesClient
	developers *capi.TTLCache[string, []string]

	dummyTokensEnabled bool
	dummyToken         string

	logger  capi.Logger
	metrics *capi.Metrics
	auditor *audit.Auditor
}

// AuthorizationOption configures an AuthorizationChecker.
type AuthorizationOption func(*AuthorizationChecker)

// WithDummyToken authorizes every user presenting token. An empty token uses
// constants.DefaultDummyToken. Intended for test landscapes only.
func WithDummyToken(token string) AuthorizationOption {
	return func(c *AuthorizationChecker) {
		if token == "" {
			token = constants.DefaultDummyToken
		}

		c.dummyTokensEnabled = true
		c.dummyToken = token
	}
}

// WithAuthorizationLogger sets the logger.
func WithAuthorizationLogger(logger capi.Logger) AuthorizationOption {
	return func(c *AuthorizationChecker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuthorizationMetrics records decisions.
func WithAuthorizationMetrics(metrics *capi.Metrics) AuthorizationOption {
	return func(c *AuthorizationChecker) {
		c.metrics = metrics
	}
}

// WithAuthorizationAuditor publishes security incidents raised by EnsureAuthorized.
func WithAuthorizationAuditor(auditor *audit.Auditor) AuthorizationOption {
	return func(c *AuthorizationChecker) {
		c.auditor = auditor
	}
}

// WithDeveloperCache replaces the space developer cache.
func WithDeveloperCache(cache *capi.TTLCache[string, []string]) AuthorizationOption {
	return func(c *AuthorizationChecker) {
		c.developers = cache
	}
}

// NewAuthorizationChecker creates a checker whose space developer lists live for ttl.
func NewAuthorizationChecker(
	roles capi.RolesClient,
	spaces capi.SpacesClient,
	ttl time.Duration,
	opts ...AuthorizationOption,
) *AuthorizationChecker {
	if ttl <= 0 {
		ttl = constants.DefaultSpaceDeveloperCacheTTL
	}

	checker := &AuthorizationChecker{
		roles:  roles,
		spaces: spaces,
		logger: capi.NoopLogger(),
	}

	for _, opt := range opts {
		opt(checker)
	}

	if checker.developers == nil {
		checker.developers = capi.NewTTLCache[string, []string](ttl, capi.WithCacheMetrics[string, []string](checker.metrics))
	}

	return checker
}

// IsAuthorized implements capi.AuthorizationChecker.IsAuthorized.
func (c *AuthorizationChecker) IsAuthorized(ctx context.Context, user *capi.UserInfo, spaceGUID string, readOnly bool) (bool, error) {
	if user == nil {
		return false, &capi.ValidationError{Field: "user", Message: "must not be nil"}
	}

	if reason, ok := c.bypass(user); ok {
		return c.decide(user, spaceGUID, true, reason), nil
	}

	userGUID, err := normalizeUserID(user.ID)
	if err != nil {
		return false, c.checkFailed(user, spaceGUID, err)
	}

	developers, err := c.developers.Get(ctx, spaceGUID, c.roles.ListSpaceDevelopers)
	if err != nil {
		return false, c.checkFailed(user, spaceGUID, err)
	}

	if containsGUID(developers, userGUID) {
		return c.decide(user, spaceGUID, true, reasonSpaceDeveloper), nil
	}

	developers, err = c.developers.ForceRefresh(ctx, spaceGUID, c.roles.ListSpaceDevelopers)
	if err != nil {
		return false, c.checkFailed(user, spaceGUID, err)
	}

	if containsGUID(developers, userGUID) {
		return c.decide(user, spaceGUID, true, reasonRefreshedCache), nil
	}

	if !readOnly {
		return c.decide(user, spaceGUID, false, reasonDenied), nil
	}

	roles, err := c.roles.ListSpaceRoles(ctx, spaceGUID, userGUID, capi.RoleTypeSpaceAuditor, capi.RoleTypeSpaceManager)
	if err != nil {
		return false, c.checkFailed(user, spaceGUID, err)
	}

	for _, role := range roles {
		if role.UserGUID != "" && strings.EqualFold(role.UserGUID, userGUID) {
			return c.decide(user, spaceGUID, true, reasonReadOnlyRole), nil
		}
	}

	return c.decide(user, spaceGUID, false, reasonDenied), nil
}

// IsAuthorizedForSpace implements capi.AuthorizationChecker.IsAuthorizedForSpace.
// A space or organization that does not exist is a denial, not a check failure.
func (c *AuthorizationChecker) IsAuthorizedForSpace(
	ctx context.Context,
	user *capi.UserInfo,
	orgName, spaceName string,
	readOnly bool,
) (bool, error) {
	if user == nil {
		return false, &capi.ValidationError{Field: "user", Message: "must not be nil"}
	}

	if reason, ok := c.bypass(user); ok {
		return c.decide(user, orgName+"/"+spaceName, true, reason), nil
	}

	space, err := c.spaces.FindSpace(ctx, orgName, spaceName)
	if err != nil {
		if errors.Is(err, capi.ErrOrganizationNotFound) || errors.Is(err, capi.ErrSpaceNotFound) {
			return c.decide(user, orgName+"/"+spaceName, false, reasonSpaceUnavailable), nil
		}

		return false, c.checkFailed(user, orgName+"/"+spaceName, err)
	}

	return c.IsAuthorized(ctx, user, guidString(space.GUID), readOnly)
}

// EnsureAuthorized implements capi.AuthorizationChecker.EnsureAuthorized. It
// returns an *AuthorizationError carrying 404 for a malformed space GUID, 401
// when the check failed and 403 when the user was denied.
func (c *AuthorizationChecker) EnsureAuthorized(
	ctx context.Context,
	user *capi.UserInfo,
	spaceGUID, action string,
	readOnly bool,
) error {
	_, err := uuid.Parse(spaceGUID)
	if err != nil {
		return c.incident(user, spaceGUID, action, &capi.AuthorizationError{
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("space %q not found", spaceGUID),
			Err:        err,
		})
	}

	authorized, err := c.IsAuthorized(ctx, user, spaceGUID, readOnly)
	if err != nil {
		return c.incident(user, spaceGUID, action, &capi.AuthorizationError{
			StatusCode: http.StatusUnauthorized,
			Message:    "could not verify permissions for " + action,
			Err:        err,
		})
	}

	if !authorized {
		return c.incident(user, spaceGUID, action, &capi.AuthorizationError{
			StatusCode: http.StatusForbidden,
			Message:    fmt.Sprintf("not authorized to %s in space %s", action, spaceGUID),
		})
	}

	return nil
}

// DeveloperCacheStats returns the developer cache counters.
func (c *AuthorizationChecker) DeveloperCacheStats() capi.CacheStats {
	return c.developers.Stats()
}

func (c *AuthorizationChecker) bypass(user *capi.UserInfo) (string, bool) {
	if c.dummyTokensEnabled && user.Token != "" && user.Token == c.dummyToken {
		return reasonDummyToken, true
	}

	if user.HasScope(constants.ScopeCloudControllerAdmin) {
		return reasonAdminScope, true
	}

	return "", false
}

func (c *AuthorizationChecker) decide(user *capi.UserInfo, space string, granted bool, reason string) bool {
	c.metrics.ObserveAuthorization(granted, reason)
	c.logger.Debug("authorization decision", map[string]interface{}{
		"user":    user.ID,
		"space":   space,
		"granted": granted,
		"reason":  reason,
	})

	return granted
}

func (c *AuthorizationChecker) checkFailed(user *capi.UserInfo, space string, err error) error {
	c.metrics.ObserveAuthorization(false, reasonCheckFailed)
	c.logger.Error("permission check failed", map[string]interface{}{
		"user":  user.ID,
		"space": space,
		"error": err.Error(),
	})

	return &capi.PermissionCheckError{User: user.ID, SpaceGUID: space, Err: err}
}

func (c *AuthorizationChecker) incident(user *capi.UserInfo, spaceGUID, action string, authErr *capi.AuthorizationError) error {
	var userID, userName string
	if user != nil {
		userID, userName = user.ID, user.Name
	}

	c.logger.Warn("security incident", map[string]interface{}{
		"user":   userID,
		"space":  spaceGUID,
		"action": action,
		"status": authErr.StatusCode,
	})

	reason := authErr.Message
	if authErr.Err != nil {
		reason = authErr.Err.Error()
	}

	c.auditor.SecurityIncident(audit.SecurityIncident{
		UserID:     userID,
		UserName:   userName,
		SpaceGUID:  spaceGUID,
		Action:     action,
		StatusCode: authErr.StatusCode,
		Reason:     reason,
	})

	return authErr
}

func normalizeUserID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", capi.ErrInvalidUserID, id)
	}

	return parsed.String(), nil
}

func containsGUID(guids []string, guid string) bool {
	for _, candidate := range guids {
		if strings.EqualFold(candidate, guid) {
			return true
		}
	}

	return false
}
