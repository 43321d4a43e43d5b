// Package services extracts the service descriptors a gateway publishes in the
// MAPPING section of an export or in its live /api/v2/mapping response.
package services

import (
	"github.com/omniaweb/hnmigrate/internal/document"
)

// Mapping document field names.
const (
	FieldServices = "services"
	FieldID       = "serviceGuid"
	FieldType     = "serviceType"
	FieldName     = "serviceName"
)

// Infrastructure service types that are never offered for re-association.
const (
	TypeGateway   = "HypernodeGatewayService"
	TypeCoreTrust = "HypernodeCoreTrustService"
)

// ExcludedTypes lists the service types dropped by Extract.
var ExcludedTypes = map[string]bool{
	TypeGateway:   true,
	TypeCoreTrust: true,
}

// Descriptor is one service instance known to a gateway.
type Descriptor struct {
	ID   string `json:"serviceGuid"`
	Type string `json:"serviceType"`
	Name string `json:"serviceName,omitempty"`
}

// Label renders the descriptor the way operators see it in selection lists.
func (d Descriptor) Label() string {
	if d.Name == "" {
		return d.ID
	}
	return d.ID + " - " + d.Name
}

// Extract returns the re-associable services listed under mapping.services.
// Anything malformed is skipped; a nil or unexpected mapping yields nil.
func Extract(mapping *document.Value) []Descriptor {
	var out []Descriptor
	for _, d := range parse(mapping) {
		if ExcludedTypes[d.Type] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// All returns every well-formed entry of mapping, infrastructure services
// included.
func All(mapping *document.Value) []Descriptor {
	return parse(mapping)
}

// GroupByType buckets descriptors by type, keeping their relative order.
func GroupByType(list []Descriptor) map[string][]Descriptor {
	groups := make(map[string][]Descriptor)
	for _, d := range list {
		groups[d.Type] = append(groups[d.Type], d)
	}
	return groups
}

func parse(mapping *document.Value) []Descriptor {
	entries := mapping.Get(FieldServices)
	if !entries.IsArray() {
		return nil
	}

	var out []Descriptor
	for _, entry := range entries.Items() {
		if !entry.IsObject() {
			continue
		}
		id, _ := entry.Get(FieldID).Str()
		typ, _ := entry.Get(FieldType).Str()
		if id == "" || typ == "" {
			continue
		}
		name, _ := entry.Get(FieldName).Str()
		out = append(out, Descriptor{ID: id, Type: typ, Name: name})
	}
	return out
}
