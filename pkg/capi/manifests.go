package capi

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest errors.
var (
	ErrUnsupportedManifestVersion = errors.New("unsupported manifest version")
	ErrDuplicateManifestService   = errors.New("duplicate service name in manifest")
)

// ServiceManifest lists service instances to provision into one space.
//
//	version: 1
//	services:
//	  - name: orders-db
//	    offering: postgresql
//	    plan: small
//	    alternatives: [postgresql-trial]
//	    parameters:
//	      db_size: 10
type ServiceManifest struct {
	Version  int               `json:"version"  yaml:"version"`
	Services []ManifestService `json:"services" yaml:"services"`
}

// ManifestService is one service instance in a manifest.
type ManifestService struct {
	Name         string                 `json:"name"                   yaml:"name"`
	Offering     string                 `json:"offering"               yaml:"offering"`
	Plan         string                 `json:"plan"                   yaml:"plan"`
	Alternatives []string               `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"   yaml:"parameters,omitempty"`
	Tags         []string               `json:"tags,omitempty"         yaml:"tags,omitempty"`
}

// ParseServiceManifest decodes a YAML (or JSON) manifest. A missing version
// means 1. Field validation is left to the provisioner.
func ParseServiceManifest(data []byte) (*ServiceManifest, error) {
	var manifest ServiceManifest

	err := yaml.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("parsing service manifest: %w", err)
	}

	if manifest.Version == 0 {
		manifest.Version = 1
	}

	if manifest.Version != 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedManifestVersion, manifest.Version)
	}

	seen := make(map[string]bool, len(manifest.Services))

	for _, service := range manifest.Services {
		if service.Name != "" && seen[service.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateManifestService, service.Name)
		}

		seen[service.Name] = true
	}

	return &manifest, nil
}

// Operations turns the manifest into batch operations targeting spaceGUID.
func (m *ServiceManifest) Operations(spaceGUID string) []BatchOperation {
	operations := make([]BatchOperation, 0, len(m.Services))

	for _, service := range m.Services {
		operations = append(operations, BatchOperation{
			ID: service.Name,
			Request: &ServiceProvisionRequest{
				Name:                 service.Name,
				Offering:             service.Offering,
				Plan:                 service.Plan,
				AlternativeOfferings: service.Alternatives,
				Credentials:          service.Parameters,
				Tags:                 service.Tags,
				SpaceGUID:            spaceGUID,
			},
		})
	}

	return operations
}
