package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/internal/http"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// CatalogClient implements capi.CatalogClient for either API dialect.
type CatalogClient struct {
	httpClient *http.Client
	executor   *capi.Executor
	mapper     *capi.ResourceMapper
	pagination *capi.PaginationOptions
	logger     capi.Logger
}

// NewCatalogClient creates a catalog client reading the given dialect ("v2" or "v3").
func NewCatalogClient(httpClient *http.Client, executor *capi.Executor, dialect string, logger capi.Logger) (*CatalogClient, error) {
	decoder, err := capi.DecoderFor(dialect)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = capi.NoopLogger()
	}

	return &CatalogClient{
		httpClient: httpClient,
		executor:   executor,
		mapper:     capi.NewResourceMapper(decoder, logger),
		pagination: capi.DefaultPaginationOptions(),
		logger:     logger,
	}, nil
}

// ListOfferings implements capi.CatalogClient.ListOfferings. Entries keep the
// order in which the API returned them; offerings sharing a name are not merged.
func (c *CatalogClient) ListOfferings(ctx context.Context) ([]capi.OfferingCatalogEntry, error) {
	if c.mapper.Decoder().Dialect() == capi.DialectV2 {
		return c.listV2(ctx)
	}

	return c.listV3(ctx)
}

func (c *CatalogClient) listV3(ctx context.Context) ([]capi.OfferingCatalogEntry, error) {
	query := url.Values{}
	query.Set("include", "service_offering")
	c.pagination.ApplyPageSize(query, c.mapper.Decoder())

	raw, err := c.fetch(ctx, constants.APIPathServicePlans+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("listing service plans: %w", err)
	}

	names := make(map[string]string)

	for _, resource := range raw.IncludedOf("service_offerings") {
		offering := c.mapper.MapServiceOffering(resource)
		names[guidString(offering.GUID)] = offering.Name
	}

	var entries []capi.OfferingCatalogEntry

	positions := make(map[string]int)

	for _, resource := range raw.Resources {
		plan := c.mapper.MapServicePlan(resource)
		offeringGUID := strings.ToLower(plan.OfferingGUID)

		name, ok := names[offeringGUID]
		if !ok {
			c.logger.Warn("service plan references an offering missing from the response", map[string]interface{}{
				"plan":          plan.Name,
				"offering_guid": plan.OfferingGUID,
			})

			continue
		}

		position, seen := positions[offeringGUID]
		if !seen {
			position = len(entries)
			positions[offeringGUID] = position
			entries = append(entries, capi.OfferingCatalogEntry{OfferingName: name, OfferingGUID: offeringGUID})
		}

		entries[position].Plans = append(entries[position].Plans, capi.CatalogPlan{
			Name: plan.Name,
			GUID: guidString(plan.GUID),
		})
	}

	return entries, nil
}

func (c *CatalogClient) listV2(ctx context.Context) ([]capi.OfferingCatalogEntry, error) {
	query := url.Values{}
	query.Set("inline-relations-depth", "1")
	c.pagination.ApplyPageSize(query, c.mapper.Decoder())

	raw, err := c.fetch(ctx, constants.APIPathV2Services+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}

	entries := make([]capi.OfferingCatalogEntry, 0, len(raw.Resources))

	for _, resource := range raw.Resources {
		offering := c.mapper.MapServiceOffering(resource)
		entry := capi.OfferingCatalogEntry{
			OfferingName: offering.Name,
			OfferingGUID: guidString(offering.GUID),
			Plans:        make([]capi.CatalogPlan, 0, len(offering.Plans)),
		}

		for _, plan := range offering.Plans {
			entry.Plans = append(entry.Plans, capi.CatalogPlan{Name: plan.Name, GUID: guidString(plan.GUID)})
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (c *CatalogClient) fetch(ctx context.Context, uri string) (*capi.AccumulatedResult[capi.RawResource], error) {
	return capi.ExecuteValue(ctx, c.executor, func(ctx context.Context) (*capi.AccumulatedResult[capi.RawResource], error) {
		return capi.FetchAllWithOptions(ctx, uri, c.httpClient.GetJSON, c.mapper.Decoder(), c.pagination)
	})
}

func guidString(guid uuid.NullUUID) string {
	if !guid.Valid {
		return ""
	}

	return guid.UUID.String()
}
