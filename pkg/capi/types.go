package capi

import (
	"time"
)

// RawResource is a decoded JSON object as returned by the Cloud Controller.
type RawResource = map[string]interface{}

// Links represents resource links.
type Links map[string]Link

// Link represents a single link.
type Link struct {
	Href   string `json:"href"             yaml:"href"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
}

// Metadata represents labels and annotations.
type Metadata struct {
	Labels      map[string]string `json:"labels,omitempty"      yaml:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Relationship represents a to-one relationship.
type Relationship struct {
	Data *RelationshipData `json:"data,omitempty" yaml:"data,omitempty"`
}

// RelationshipData contains the GUID of the related resource.
type RelationshipData struct {
	GUID string `json:"guid" yaml:"guid"`
}

// NewRelationship returns a to-one relationship pointing at guid.
func NewRelationship(guid string) Relationship {
	return Relationship{Data: &RelationshipData{GUID: guid}}
}

// ResourcePage is one decoded page of a paginated collection. Next is empty on
// the last page. Included holds v3 side-tables keyed by resource type.
type ResourcePage struct {
	Resources []RawResource
	Included  map[string][]RawResource
	Next      string
}

// AccumulatedResult is the union of all pages of a collection. Resources keep
// page arrival order. Included lists are concatenated per key; duplicates are kept.
type AccumulatedResult[T any] struct {
	Resources []T                      `json:"resources"          yaml:"resources"`
	Included  map[string][]RawResource `json:"included,omitempty" yaml:"included,omitempty"`
}

// IncludedOf returns the side-table for key, or nil.
func (r *AccumulatedResult[T]) IncludedOf(key string) []RawResource {
	if r == nil || r.Included == nil {
		return nil
	}

	return r.Included[key]
}

// LogRecord is a single application log line.
type LogRecord struct {
	Timestamp  time.Time `json:"timestamp"   yaml:"timestamp"`
	Message    string    `json:"message"     yaml:"message"`
	SourceID   string    `json:"source_id"   yaml:"source_id"`
	SourceType string    `json:"source_type" yaml:"source_type"`
	Type       string    `json:"type"        yaml:"type"`
}

// LogOffset marks the last log record a caller has already seen.
type LogOffset struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Message   string    `json:"message"   yaml:"message"`
}

// OffsetOf returns the offset pointing at the last record of records, or nil
// when records is empty.
func OffsetOf(records []LogRecord) *LogOffset {
	if len(records) == 0 {
		return nil
	}

	last := records[len(records)-1]

	return &LogOffset{Timestamp: last.Timestamp, Message: last.Message}
}
