package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// RolesClient implements capi.RolesClient. Space developers are read from
// the v2 API, role assignments from v3.
type RolesClient struct {
	httpClient *http.Client
	executor   *capi.Executor
	v2         *capi.ResourceMapper
	v3         *capi.ResourceMapper
	pagination *capi.PaginationOptions
}

// NewRolesClient creates a new roles client.
func NewRolesClient(httpClient *http.Client, executor *capi.Executor, logger capi.Logger) *RolesClient {
	return &RolesClient{
		httpClient: httpClient,
		executor:   executor,
		v2:         capi.NewResourceMapper(capi.V2Decoder{}, logger),
		v3:         capi.NewResourceMapper(capi.V3Decoder{}, logger),
		pagination: capi.DefaultPaginationOptions(),
	}
}

// ListSpaceDevelopers implements capi.RolesClient.ListSpaceDevelopers.
func (c *RolesClient) ListSpaceDevelopers(ctx context.Context, spaceGUID string) ([]string, error) {
	query := url.Values{}
	c.pagination.ApplyPageSize(query, c.v2.Decoder())

	uri := constants.APIPathV2Spaces + "/" + url.PathEscape(spaceGUID) + "/developers?" + query.Encode()

	raw, err := capi.ExecuteValue(ctx, c.executor, func(ctx context.Context) (*capi.AccumulatedResult[capi.RawResource], error) {
		return capi.FetchAllWithOptions(ctx, uri, c.httpClient.GetJSON, c.v2.Decoder(), c.pagination)
	})
	if err != nil {
		return nil, fmt.Errorf("listing developers of space %s: %w", spaceGUID, err)
	}

	developers := make([]string, 0, len(raw.Resources))

	for _, resource := range raw.Resources {
		if guid := c.v2.MapUserGUID(resource); guid != "" {
			developers = append(developers, guid)
		}
	}

	return developers, nil
}

// ListSpaceRoles implements capi.RolesClient.ListSpaceRoles. Without types,
// every role of the user in the space is returned.
func (c *RolesClient) ListSpaceRoles(ctx context.Context, spaceGUID, userGUID string, types ...capi.RoleType) ([]capi.Role, error) {
	query := url.Values{}
	query.Set("space_guids", spaceGUID)
	query.Set("user_guids", userGUID)
	c.pagination.ApplyPageSize(query, c.v3.Decoder())

	if len(types) > 0 {
		values := make([]string, 0, len(types))
		for _, roleType := range types {
			values = append(values, roleType.APIValue())
		}

		query.Set("types", strings.Join(values, ","))
	}

	uri := constants.APIPathRoles + "?" + query.Encode()

	raw, err := capi.ExecuteValue(ctx, c.executor, func(ctx context.Context) (*capi.AccumulatedResult[capi.RawResource], error) {
		return capi.FetchAllWithOptions(ctx, uri, c.httpClient.GetJSON, c.v3.Decoder(), c.pagination)
	})
	if err != nil {
		return nil, fmt.Errorf("listing roles in space %s: %w", spaceGUID, err)
	}

	roles, err := capi.MapAllWith[capi.Role](raw, c.v3)
	if err != nil {
		return nil, fmt.Errorf("listing roles in space %s: %w", spaceGUID, err)
	}

	return roles.Resources, nil
}
