package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fivetwenty-io/capi-deployer/internal/audit"
	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// unlistedOfferingLabel is the metric label for offerings absent from the catalog.
const unlistedOfferingLabel = "unlisted"

type instanceCreator interface {
	Create(ctx context.Context, request *capi.ServiceInstanceCreateRequest) (string, error)
}

// Provisioner implements capi.ServiceProvisioner.
type Provisioner struct {
	catalog   capi.CatalogClient
	instances instanceCreator
	executor  *capi.Executor
	logger    capi.Logger
	metrics   *capi.Metrics
	auditor   *audit.Auditor
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithProvisionerLogger sets the logger.
func WithProvisionerLogger(logger capi.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProvisionerMetrics records every creation attempt.
func WithProvisionerMetrics(metrics *capi.Metrics) ProvisionerOption {
	return func(p *Provisioner) {
		p.metrics = metrics
	}
}

// WithProvisionerAuditor publishes every creation attempt.
func WithProvisionerAuditor(auditor *audit.Auditor) ProvisionerOption {
	return func(p *Provisioner) {
		p.auditor = auditor
	}
}

// NewProvisioner creates a provisioner reading offerings from catalog and
// creating instances through instances.
func NewProvisioner(catalog capi.CatalogClient, instances instanceCreator, executor *capi.Executor, opts ...ProvisionerOption) *Provisioner {
	provisioner := &Provisioner{
		catalog:   catalog,
		instances: instances,
		executor:  executor,
		logger:    capi.NoopLogger(),
	}

	for _, opt := range opts {
		opt(provisioner)
	}

	return provisioner
}

// Provision implements capi.ServiceProvisioner.Provision.
func (p *Provisioner) Provision(ctx context.Context, request *capi.ServiceProvisionRequest) (*capi.ProvisionResult, error) {
	err := validateProvisionRequest(request)
	if err != nil {
		return nil, err
	}

	catalog, err := p.catalog.ListOfferings(ctx)
	if err != nil {
		if len(request.AlternativeOfferings) == 0 {
			return nil, err
		}

		return nil, fmt.Errorf("reading service catalog: %w", err)
	}

	index := indexCatalog(catalog, request.Plan)

	if len(request.AlternativeOfferings) == 0 {
		return p.create(ctx, request, request.Offering, index[request.Offering])
	}

	candidates := request.Candidates()
	valid := make([]string, 0, len(candidates))

	for _, candidate := range candidates {
		entry, ok := index[candidate]
		if !ok {
			p.logger.Warn("service offering does not exist", map[string]interface{}{
				"service":  request.Name,
				"offering": candidate,
			})

			continue
		}

		if _, ok := entry.FindPlan(request.Plan); !ok {
			p.logger.Warn("service offering does not provide the requested plan", map[string]interface{}{
				"service":  request.Name,
				"offering": candidate,
				"plan":     request.Plan,
			})

			continue
		}

		valid = append(valid, candidate)
	}

	if len(valid) == 0 {
		return nil, &capi.ProvisioningExhaustedError{
			Service:   request.Name,
			Offerings: candidates,
			Plan:      request.Plan,
		}
	}

	for _, candidate := range valid {
		result, err := p.create(ctx, request, candidate, index[candidate])
		if err == nil {
			return result, nil
		}

		if !isForbidden(err) {
			return nil, err
		}

		p.logger.Warn("offering rejected the request, trying the next candidate", map[string]interface{}{
			"service":  request.Name,
			"offering": candidate,
			"plan":     request.Plan,
			"error":    err.Error(),
		})
	}

	return nil, &capi.ProvisioningExhaustedError{
		Service:   request.Name,
		Offerings: valid,
		Plan:      request.Plan,
	}
}

func (p *Provisioner) create(
	ctx context.Context,
	request *capi.ServiceProvisionRequest,
	offering string,
	entry *capi.OfferingCatalogEntry,
) (*capi.ProvisionResult, error) {
	var (
		plan  capi.CatalogPlan
		found bool
	)

	if entry != nil {
		plan, found = entry.FindPlan(request.Plan)
	}

	if !found {
		err := fmt.Errorf("%w: offering %q has no plan %q", capi.ErrServicePlanNotFound, offering, request.Plan)
		p.record(request, offering, entry != nil, audit.OutcomeFailed, err)

		return nil, err
	}

	planRelationship := capi.NewRelationship(plan.GUID)
	body := &capi.ServiceInstanceCreateRequest{
		Type:       constants.ServiceInstanceTypeManaged,
		Name:       request.Name,
		Tags:       request.Tags,
		Parameters: request.Credentials,
		Relationships: capi.ServiceInstanceRelationships{
			Space:       capi.NewRelationship(request.SpaceGUID),
			ServicePlan: &planRelationship,
		},
	}

	p.logger.Info("creating service instance", map[string]interface{}{
		"service":  request.Name,
		"offering": offering,
		"plan":     request.Plan,
	})

	jobURL, err := capi.ExecuteValue(ctx, p.executor, func(ctx context.Context) (string, error) {
		return p.instances.Create(ctx, body)
	})
	if err != nil {
		outcome := audit.OutcomeFailed
		if isForbidden(err) {
			outcome = audit.OutcomeForbidden
		}

		p.record(request, offering, true, outcome, err)

		return nil, err
	}

	p.record(request, offering, true, audit.OutcomeCreated, nil)

	return &capi.ProvisionResult{
		Name:     request.Name,
		Offering: offering,
		Plan:     request.Plan,
		PlanGUID: plan.GUID,
		JobURL:   jobURL,
	}, nil
}

// record emits the metric and audit event for one attempt.
func (p *Provisioner) record(request *capi.ServiceProvisionRequest, offering string, listed bool, outcome string, err error) {
	label := offering
	if !listed {
		label = unlistedOfferingLabel
	}

	p.metrics.ObserveProvisioning(label, outcome)

	event := audit.ProvisioningEvent{
		Name:      request.Name,
		Offering:  offering,
		Plan:      request.Plan,
		SpaceGUID: request.SpaceGUID,
		Outcome:   outcome,
	}

	if err != nil {
		event.Error = err.Error()
	}

	p.auditor.Provisioning(event)
}

func validateProvisionRequest(request *capi.ServiceProvisionRequest) error {
	if request == nil {
		return &capi.ValidationError{Field: "request", Message: "must not be nil"}
	}

	required := []struct {
		field string
		value string
	}{
		{"name", request.Name},
		{"offering", request.Offering},
		{"plan", request.Plan},
		{"space GUID", request.SpaceGUID},
	}

	for _, r := range required {
		if r.value == "" {
			return &capi.ValidationError{Field: r.field, Message: "must not be empty"}
		}
	}

	return nil
}

// indexCatalog indexes entries by offering name. When several brokers expose
// the same name, the first entry that provides plan wins.
func indexCatalog(entries []capi.OfferingCatalogEntry, plan string) map[string]*capi.OfferingCatalogEntry {
	index := make(map[string]*capi.OfferingCatalogEntry, len(entries))

	for i := range entries {
		entry := &entries[i]

		existing, ok := index[entry.OfferingName]
		if !ok {
			index[entry.OfferingName] = entry

			continue
		}

		if _, has := existing.FindPlan(plan); has {
			continue
		}

		if _, has := entry.FindPlan(plan); has {
			index[entry.OfferingName] = entry
		}
	}

	return index
}

func isForbidden(err error) bool {
	domainErr := &capi.DomainError{}

	return errors.As(err, &domainErr) && domainErr.StatusCode == http.StatusForbidden
}
