package services

import (
	"github.com/omniaweb/hnmigrate/internal/document"
)

// Lookup resolves identifiers against every well-formed entry of a mapping,
// infrastructure services included.
type Lookup struct {
	byID map[string]Descriptor
}

// NewLookup indexes the services of mapping.
func NewLookup(mapping *document.Value) *Lookup {
	l := &Lookup{byID: make(map[string]Descriptor)}
	for _, d := range parse(mapping) {
		l.byID[d.ID] = d
	}
	return l
}

// Get returns the descriptor for id.
func (l *Lookup) Get(id string) (Descriptor, bool) {
	d, ok := l.byID[id]
	return d, ok
}

// Len returns the number of indexed services.
func (l *Lookup) Len() int {
	return len(l.byID)
}

// Describe renders id with its service name when known.
func (l *Lookup) Describe(id string) string {
	if id == "" {
		return "N/D"
	}
	d, ok := l.byID[id]
	if !ok || d.Name == "" {
		return id
	}
	return id + " (" + d.Name + ")"
}
