package capi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialects understood by the decoders.
const (
	DialectV2 = "v2"
	DialectV3 = "v3"
)

// ResourceDecoder knows where a dialect keeps page links, identity and scalar fields.
type ResourceDecoder interface {
	Dialect() string
	// DecodePage parses one collection page. A page without a "resources"
	// array fails with ErrMissingResources.
	DecodePage(body []byte) (*ResourcePage, error)
	// Identity returns an identity attribute (guid, created_at, updated_at).
	Identity(resource RawResource, key string) interface{}
	// Field returns a scalar or nested attribute.
	Field(resource RawResource, key string) interface{}
	// RelationshipGUID returns the GUID of a to-one relationship, or "".
	RelationshipGUID(resource RawResource, name string) string
}

// V2Decoder decodes the envelope dialect: identity under "metadata", scalars
// under "entity", next page in "next_url".
type V2Decoder struct{}

// Dialect implements ResourceDecoder.
func (V2Decoder) Dialect() string { return DialectV2 }

// DecodePage implements ResourceDecoder.
func (V2Decoder) DecodePage(body []byte) (*ResourcePage, error) {
	payload, resources, err := decodeResources(body)
	if err != nil {
		return nil, err
	}

	page := &ResourcePage{Resources: resources}

	if next, ok := payload["next_url"].(string); ok {
		page.Next = next
	}

	return page, nil
}

// Identity implements ResourceDecoder.
func (V2Decoder) Identity(resource RawResource, key string) interface{} {
	return nested(resource, "metadata", key)
}

// Field implements ResourceDecoder.
func (V2Decoder) Field(resource RawResource, key string) interface{} {
	return nested(resource, "entity", key)
}

// RelationshipGUID implements ResourceDecoder. v2 inlines relations as "<name>_guid".
func (d V2Decoder) RelationshipGUID(resource RawResource, name string) string {
	guid, _ := d.Field(resource, name+"_guid").(string)

	return guid
}

// V3Decoder decodes the flat dialect: attributes at top level, next page in
// "pagination.next.href", side-tables in "included".
type V3Decoder struct{}

// Dialect implements ResourceDecoder.
func (V3Decoder) Dialect() string { return DialectV3 }

// DecodePage implements ResourceDecoder.
func (V3Decoder) DecodePage(body []byte) (*ResourcePage, error) {
	payload, resources, err := decodeResources(body)
	if err != nil {
		return nil, err
	}

	page := &ResourcePage{Resources: resources}

	if next, ok := nested(payload, "pagination", "next", "href").(string); ok {
		page.Next = next
	}

	if included, ok := payload["included"].(map[string]interface{}); ok {
		page.Included = make(map[string][]RawResource, len(included))

		for key, value := range included {
			page.Included[key] = toResources(value)
		}
	}

	return page, nil
}

// Identity implements ResourceDecoder.
func (V3Decoder) Identity(resource RawResource, key string) interface{} {
	return resource[key]
}

// Field implements ResourceDecoder.
func (V3Decoder) Field(resource RawResource, key string) interface{} {
	return resource[key]
}

// RelationshipGUID implements ResourceDecoder.
func (V3Decoder) RelationshipGUID(resource RawResource, name string) string {
	guid, _ := nested(resource, "relationships", name, "data", "guid").(string)

	return guid
}

// DecoderFor returns the decoder of a dialect name.
func DecoderFor(dialect string) (ResourceDecoder, error) {
	switch dialect {
	case DialectV2:
		return V2Decoder{}, nil
	case DialectV3, "":
		return V3Decoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCatalogVersion, dialect)
	}
}

func decodeResources(body []byte) (map[string]interface{}, []RawResource, error) {
	var payload map[string]interface{}

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedPage, err)
	}

	if payload == nil {
		return nil, nil, ErrMalformedPage
	}

	raw, ok := payload["resources"].([]interface{})
	if !ok {
		return nil, nil, ErrMissingResources
	}

	return payload, toResources(raw), nil
}

func toResources(value interface{}) []RawResource {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}

	resources := make([]RawResource, 0, len(list))

	for _, item := range list {
		if resource, ok := item.(map[string]interface{}); ok {
			resources = append(resources, resource)
		}
	}

	return resources
}

func nested(resource RawResource, path ...string) interface{} {
	var current interface{} = resource

	for _, key := range path {
		object, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}

		current = object[key]
	}

	return current
}

// Accepted timestamp layouts. The second and third cover offsets without a colon.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
}

// ParseGUID parses a GUID string. Malformed input yields an invalid
// NullUUID and a warning; it never fails.
func ParseGUID(value interface{}, logger Logger) uuid.NullUUID {
	text, ok := value.(string)
	if !ok || text == "" {
		return uuid.NullUUID{}
	}

	parsed, err := uuid.Parse(text)
	if err != nil {
		loggerOrNoop(logger).Warn("ignoring malformed GUID", map[string]interface{}{
			"value": text,
			"error": err.Error(),
		})

		return uuid.NullUUID{}
	}

	return uuid.NullUUID{UUID: parsed, Valid: true}
}

// ParseDate parses an ISO-8601 timestamp and drops its zone: the wall clock
// is kept and the location set to UTC. Malformed input yields nil and a warning.
func ParseDate(value interface{}, logger Logger) *time.Time {
	text, ok := value.(string)
	if !ok || text == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, text)
		if err != nil {
			continue
		}

		naive := time.Date(parsed.Year(), parsed.Month(), parsed.Day(),
			parsed.Hour(), parsed.Minute(), parsed.Second(), parsed.Nanosecond(), time.UTC)

		return &naive
	}

	loggerOrNoop(logger).Warn("ignoring malformed date", map[string]interface{}{
		"value": text,
	})

	return nil
}

// ParseEnum matches value, upper-cased, against the given constants.
func ParseEnum[T ~string](value string, values []T) (T, error) {
	normalized := strings.ToUpper(value)

	for _, candidate := range values {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}

	var zero T

	return zero, fmt.Errorf("%w: %q", ErrUnknownEnumValue, value)
}

// ResourceMapper converts raw resources of one dialect into domain types.
type ResourceMapper struct {
	decoder ResourceDecoder
	logger  Logger
}

// NewResourceMapper creates a mapper for the decoder's dialect.
func NewResourceMapper(decoder ResourceDecoder, logger Logger) *ResourceMapper {
	return &ResourceMapper{decoder: decoder, logger: loggerOrNoop(logger)}
}

// Decoder returns the underlying decoder.
func (m *ResourceMapper) Decoder() ResourceDecoder {
	return m.decoder
}

// GUID returns the resource's GUID.
func (m *ResourceMapper) GUID(resource RawResource) uuid.NullUUID {
	return ParseGUID(m.decoder.Identity(resource, "guid"), m.logger)
}

// Date returns an identity timestamp such as created_at.
func (m *ResourceMapper) Date(resource RawResource, key string) *time.Time {
	return ParseDate(m.decoder.Identity(resource, key), m.logger)
}

// String returns a string field or "".
func (m *ResourceMapper) String(resource RawResource, key string) string {
	value, _ := m.decoder.Field(resource, key).(string)

	return value
}

// Bool returns a boolean field or false.
func (m *ResourceMapper) Bool(resource RawResource, key string) bool {
	value, _ := m.decoder.Field(resource, key).(bool)

	return value
}

// MapOrganization maps an organization resource.
func (m *ResourceMapper) MapOrganization(resource RawResource) Organization {
	return Organization{
		GUID: m.GUID(resource),
		Name: m.String(resource, "name"),
	}
}

// MapSpace maps a space resource.
func (m *ResourceMapper) MapSpace(resource RawResource) Space {
	return Space{
		GUID:             m.GUID(resource),
		Name:             m.String(resource, "name"),
		OrganizationGUID: m.decoder.RelationshipGUID(resource, "organization"),
		CreatedAt:        m.Date(resource, "created_at"),
		UpdatedAt:        m.Date(resource, "updated_at"),
	}
}

// MapServicePlan maps a service plan resource.
func (m *ResourceMapper) MapServicePlan(resource RawResource) ServicePlan {
	available := m.Bool(resource, "available")
	if m.decoder.Dialect() == DialectV2 {
		available = m.Bool(resource, "active")
	}

	offeringGUID := m.decoder.RelationshipGUID(resource, "service_offering")
	if offeringGUID == "" {
		offeringGUID = m.decoder.RelationshipGUID(resource, "service")
	}

	return ServicePlan{
		GUID:         m.GUID(resource),
		Name:         m.String(resource, "name"),
		Description:  m.String(resource, "description"),
		Free:         m.Bool(resource, "free"),
		Available:    available,
		OfferingGUID: offeringGUID,
		CreatedAt:    m.Date(resource, "created_at"),
	}
}

// MapServiceOffering maps a service offering resource. v2 services carry
// their name in "label" and may inline their plans under "service_plans".
func (m *ResourceMapper) MapServiceOffering(resource RawResource) ServiceOffering {
	offering := ServiceOffering{
		GUID:        m.GUID(resource),
		Name:        m.String(resource, "name"),
		Description: m.String(resource, "description"),
		Available:   m.Bool(resource, "available"),
		BrokerGUID:  m.decoder.RelationshipGUID(resource, "service_broker"),
		CreatedAt:   m.Date(resource, "created_at"),
		UpdatedAt:   m.Date(resource, "updated_at"),
	}

	if m.decoder.Dialect() == DialectV2 {
		offering.Name = m.String(resource, "label")
		offering.Available = m.Bool(resource, "active")

		for _, plan := range toResources(m.decoder.Field(resource, "service_plans")) {
			offering.Plans = append(offering.Plans, m.MapServicePlan(plan))
		}
	}

	return offering
}

// MapRole maps a v3 role resource. An unknown role type is an error.
func (m *ResourceMapper) MapRole(resource RawResource) (Role, error) {
	roleType, err := ParseEnum(m.String(resource, "type"), RoleTypes)
	if err != nil {
		return Role{}, fmt.Errorf("mapping role %v: %w", m.decoder.Identity(resource, "guid"), err)
	}

	return Role{
		GUID:      m.GUID(resource),
		Type:      roleType,
		UserGUID:  m.decoder.RelationshipGUID(resource, "user"),
		SpaceGUID: m.decoder.RelationshipGUID(resource, "space"),
		OrgGUID:   m.decoder.RelationshipGUID(resource, "organization"),
	}, nil
}

// MapUserGUID returns the GUID of a user resource, or "" when malformed.
func (m *ResourceMapper) MapUserGUID(resource RawResource) string {
	guid := m.GUID(resource)
	if !guid.Valid {
		return ""
	}

	return guid.UUID.String()
}

// MapResource dispatches on T to the per-type mapping function.
func MapResource[T any](m *ResourceMapper, resource RawResource) (T, error) {
	var (
		zero   T
		result interface{}
		err    error
	)

	switch any(zero).(type) {
	case Organization:
		result = m.MapOrganization(resource)
	case Space:
		result = m.MapSpace(resource)
	case ServiceOffering:
		result = m.MapServiceOffering(resource)
	case ServicePlan:
		result = m.MapServicePlan(resource)
	case Role:
		result, err = m.MapRole(resource)
	default:
		return zero, fmt.Errorf("%w: %T", ErrUnsupportedResource, zero)
	}

	if err != nil {
		return zero, err
	}

	typed, _ := result.(T)

	return typed, nil
}
