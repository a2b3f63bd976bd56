package capi

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleType is the kind of a Cloud Foundry role.
type RoleType string

// Role types known to the Cloud Controller.
const (
	RoleTypeSpaceDeveloper             RoleType = "SPACE_DEVELOPER"
	RoleTypeSpaceAuditor               RoleType = "SPACE_AUDITOR"
	RoleTypeSpaceManager               RoleType = "SPACE_MANAGER"
	RoleTypeSpaceSupporter             RoleType = "SPACE_SUPPORTER"
	RoleTypeOrganizationUser           RoleType = "ORGANIZATION_USER"
	RoleTypeOrganizationAuditor        RoleType = "ORGANIZATION_AUDITOR"
	RoleTypeOrganizationManager        RoleType = "ORGANIZATION_MANAGER"
	RoleTypeOrganizationBillingManager RoleType = "ORGANIZATION_BILLING_MANAGER"
)

// RoleTypes lists every known RoleType.
var RoleTypes = []RoleType{
	RoleTypeSpaceDeveloper,
	RoleTypeSpaceAuditor,
	RoleTypeSpaceManager,
	RoleTypeSpaceSupporter,
	RoleTypeOrganizationUser,
	RoleTypeOrganizationAuditor,
	RoleTypeOrganizationManager,
	RoleTypeOrganizationBillingManager,
}

// APIValue returns the lower-case form used in query filters.
func (r RoleType) APIValue() string {
	return strings.ToLower(string(r))
}

// Organization represents a Cloud Foundry organization.
type Organization struct {
	GUID uuid.NullUUID `json:"guid" yaml:"guid"`
	Name string        `json:"name" yaml:"name"`
}

// Space represents a Cloud Foundry space.
type Space struct {
	GUID             uuid.NullUUID `json:"guid"              yaml:"guid"`
	Name             string        `json:"name"              yaml:"name"`
	OrganizationGUID string        `json:"organization_guid" yaml:"organization_guid"`
	CreatedAt        *time.Time    `json:"created_at"        yaml:"created_at"`
	UpdatedAt        *time.Time    `json:"updated_at"        yaml:"updated_at"`
}

// ServiceOffering is a broker-provided service type.
type ServiceOffering struct {
	GUID        uuid.NullUUID `json:"guid"                  yaml:"guid"`
	Name        string        `json:"name"                  yaml:"name"`
	Description string        `json:"description"           yaml:"description"`
	Available   bool          `json:"available"             yaml:"available"`
	BrokerGUID  string        `json:"broker_guid,omitempty" yaml:"broker_guid,omitempty"`
	CreatedAt   *time.Time    `json:"created_at"            yaml:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at"            yaml:"updated_at"`
	Plans       []ServicePlan `json:"plans,omitempty"       yaml:"plans,omitempty"`
}

// ServicePlan is a tier of a service offering.
type ServicePlan struct {
	GUID         uuid.NullUUID `json:"guid"          yaml:"guid"`
	Name         string        `json:"name"          yaml:"name"`
	Description  string        `json:"description"   yaml:"description"`
	Free         bool          `json:"free"          yaml:"free"`
	Available    bool          `json:"available"     yaml:"available"`
	OfferingGUID string        `json:"offering_guid" yaml:"offering_guid"`
	CreatedAt    *time.Time    `json:"created_at"    yaml:"created_at"`
}

// Role binds a user to an organization or space.
type Role struct {
	GUID      uuid.NullUUID `json:"guid"       yaml:"guid"`
	Type      RoleType      `json:"type"       yaml:"type"`
	UserGUID  string        `json:"user_guid"  yaml:"user_guid"`
	SpaceGUID string        `json:"space_guid" yaml:"space_guid"`
	OrgGUID   string        `json:"org_guid"   yaml:"org_guid"`
}

// CatalogPlan is a plan name and GUID within an OfferingCatalogEntry.
type CatalogPlan struct {
	Name string `json:"name" yaml:"name"`
	GUID string `json:"guid" yaml:"guid"`
}

// OfferingCatalogEntry is a service offering and its plans as seen by the
// provisioner. It is rebuilt for every provisioning attempt.
type OfferingCatalogEntry struct {
	OfferingName string        `json:"offering_name" yaml:"offering_name"`
	OfferingGUID string        `json:"offering_guid" yaml:"offering_guid"`
	Plans        []CatalogPlan `json:"plans"         yaml:"plans"`
}

// FindPlan returns the plan named name. Plan names match case-sensitively.
func (e *OfferingCatalogEntry) FindPlan(name string) (CatalogPlan, bool) {
	for _, plan := range e.Plans {
		if plan.Name == name {
			return plan, true
		}
	}

	return CatalogPlan{}, false
}

// ServiceProvisionRequest describes a managed service instance to create.
type ServiceProvisionRequest struct {
	// Name is the service instance name.
	Name string `json:"name" yaml:"name"`
	// Offering is the preferred service offering.
	Offering string `json:"offering" yaml:"offering"`
	// Plan is the plan name, which every candidate offering must provide.
	Plan string `json:"plan" yaml:"plan"`
	// AlternativeOfferings are tried in order after Offering.
	AlternativeOfferings []string `json:"alternative_offerings,omitempty" yaml:"alternative_offerings,omitempty"`
	// Credentials are passed to the broker as parameters.
	Credentials map[string]interface{} `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Tags        []string               `json:"tags,omitempty"        yaml:"tags,omitempty"`
	// SpaceGUID is the target space.
	SpaceGUID string `json:"space_guid" yaml:"space_guid"`
}

// Candidates returns the primary offering followed by the alternatives.
func (r *ServiceProvisionRequest) Candidates() []string {
	candidates := make([]string, 0, len(r.AlternativeOfferings)+1)
	candidates = append(candidates, r.Offering)

	return append(candidates, r.AlternativeOfferings...)
}

// ProvisionResult reports which offering created the instance.
type ProvisionResult struct {
	Name     string `json:"name"              yaml:"name"`
	Offering string `json:"offering"          yaml:"offering"`
	Plan     string `json:"plan"              yaml:"plan"`
	PlanGUID string `json:"plan_guid"         yaml:"plan_guid"`
	JobURL   string `json:"job_url,omitempty" yaml:"job_url,omitempty"`
}

// ServiceInstanceCreateRequest is the v3 service instance creation body.
type ServiceInstanceCreateRequest struct {
	Type          string                       `json:"type"                 yaml:"type"`
	Name          string                       `json:"name"                 yaml:"name"`
	Tags          []string                     `json:"tags,omitempty"       yaml:"tags,omitempty"`
	Parameters    map[string]interface{}       `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Relationships ServiceInstanceRelationships `json:"relationships"        yaml:"relationships"`
	Metadata      *Metadata                    `json:"metadata,omitempty"   yaml:"metadata,omitempty"`
}

// ServiceInstanceRelationships represents service instance relationships.
type ServiceInstanceRelationships struct {
	Space       Relationship  `json:"space"                  yaml:"space"`
	ServicePlan *Relationship `json:"service_plan,omitempty" yaml:"service_plan,omitempty"`
}

// UserInfo identifies the caller of a permission check.
type UserInfo struct {
	ID     string   `json:"id"     yaml:"id"`
	Name   string   `json:"name"   yaml:"name"`
	Token  string   `json:"-"      yaml:"-"`
	Scopes []string `json:"scopes" yaml:"scopes"`
}

// HasScope reports whether the user's token carries scope.
func (u *UserInfo) HasScope(scope string) bool {
	for _, s := range u.Scopes {
		if s == scope {
			return true
		}
	}

	return false
}

// Job is an asynchronous Cloud Controller operation.
type Job struct {
	GUID      string       `json:"guid"               yaml:"guid"`
	Operation string       `json:"operation"          yaml:"operation"`
	State     string       `json:"state"              yaml:"state"`
	Errors    []APIError   `json:"errors,omitempty"   yaml:"errors,omitempty"`
	Warnings  []JobWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// JobWarning is a non-fatal message attached to a job.
type JobWarning struct {
	Detail string `json:"detail" yaml:"detail"`
}
