package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// SpacesClient implements capi.SpacesClient on the v3 API.
type SpacesClient struct {
	httpClient *http.Client
	executor   *capi.Executor
	mapper     *capi.ResourceMapper
	pagination *capi.PaginationOptions
}

// NewSpacesClient creates a new spaces client.
func NewSpacesClient(httpClient *http.Client, executor *capi.Executor, logger capi.Logger) *SpacesClient {
	return &SpacesClient{
		httpClient: httpClient,
		executor:   executor,
		mapper:     capi.NewResourceMapper(capi.V3Decoder{}, logger),
		pagination: capi.DefaultPaginationOptions(),
	}
}

// FindOrganization implements capi.SpacesClient.FindOrganization.
func (c *SpacesClient) FindOrganization(ctx context.Context, name string) (*capi.Organization, error) {
	query := url.Values{}
	query.Set("names", name)
	c.pagination.ApplyPageSize(query, c.mapper.Decoder())

	raw, err := c.fetch(ctx, constants.APIPathOrganizations+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("getting organization %s: %w", name, err)
	}

	orgs, err := capi.MapAllWith[capi.Organization](raw, c.mapper)
	if err != nil {
		return nil, fmt.Errorf("getting organization %s: %w", name, err)
	}

	if len(orgs.Resources) == 0 {
		return nil, fmt.Errorf("%w: %s", capi.ErrOrganizationNotFound, name)
	}

	return &orgs.Resources[0], nil
}

// FindSpace implements capi.SpacesClient.FindSpace.
func (c *SpacesClient) FindSpace(ctx context.Context, orgName, spaceName string) (*capi.Space, error) {
	org, err := c.FindOrganization(ctx, orgName)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("names", spaceName)
	query.Set("organization_guids", guidString(org.GUID))
	c.pagination.ApplyPageSize(query, c.mapper.Decoder())

	raw, err := c.fetch(ctx, constants.APIPathSpaces+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("getting space %s/%s: %w", orgName, spaceName, err)
	}

	spaces, err := capi.MapAllWith[capi.Space](raw, c.mapper)
	if err != nil {
		return nil, fmt.Errorf("getting space %s/%s: %w", orgName, spaceName, err)
	}

	if len(spaces.Resources) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", capi.ErrSpaceNotFound, orgName, spaceName)
	}

	return &spaces.Resources[0], nil
}

func (c *SpacesClient) fetch(ctx context.Context, uri string) (*capi.AccumulatedResult[capi.RawResource], error) {
	return capi.ExecuteValue(ctx, c.executor, func(ctx context.Context) (*capi.AccumulatedResult[capi.RawResource], error) {
		return capi.FetchAllWithOptions(ctx, uri, c.httpClient.GetJSON, c.mapper.Decoder(), c.pagination)
	})
}
