package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// ServiceInstancesClient creates managed service instances through the v3 API.
type ServiceInstancesClient struct {
	httpClient *http.Client
}

// NewServiceInstancesClient creates a new service instances client.
func NewServiceInstancesClient(httpClient *http.Client) *ServiceInstancesClient {
	return &ServiceInstancesClient{httpClient: httpClient}
}

// Create sends the creation request and returns the job URL from the
// Location header. Creation is asynchronous; the URL is empty when the API
// completed the request synchronously.
func (c *ServiceInstancesClient) Create(ctx context.Context, request *capi.ServiceInstanceCreateRequest) (string, error) {
	if request.Type == "" {
		request.Type = constants.ServiceInstanceTypeManaged
	}

	resp, err := c.httpClient.Post(ctx, constants.APIPathServiceInstances, request)
	if err != nil {
		return "", fmt.Errorf("creating service instance %s: %w", request.Name, err)
	}

	return resp.Headers.Get("Location"), nil
}
