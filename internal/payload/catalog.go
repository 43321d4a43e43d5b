// Package payload splits an export document into its top-level sections and
// decides which of them are sent back through an import.
package payload

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Section keys of a gateway export.
const (
	KeyChannels       = "CHANNELS"
	KeyMapping        = "MAPPING"
	KeyServer         = "SERVER"
	KeyUsers          = "USERS"
	KeySnapshots      = "SNAPSHOTS"
	KeyRecordings     = "RECORDINGS"
	KeyEvents         = "EVENTS"
	KeyMetadata       = "METADATA"
	KeyExportedAt     = "EXPORTED_AT"
	KeyGatewayVersion = "GATEWAY_VERSION"
	KeyCoreTrust      = "CORETRUST"
)

// Catalog describes the sections a payload may carry and how they relate.
type Catalog struct {
	// Keys lists recognized sections in presentation order.
	Keys []string
	// Blocked sections are never read nor sent. Matched case-insensitively.
	Blocked mapset.Set[string]
	// Locked sections are always sent and cannot be deselected.
	Locked mapset.Set[string]
	// Dependents maps a parent section to the sections that follow it.
	Dependents map[string][]string
}

// DefaultCatalog returns the sections of a Hypernode gateway export.
func DefaultCatalog() Catalog {
	return Catalog{
		Keys: []string{
			KeyChannels,
			KeyMapping,
			KeyServer,
			KeyUsers,
			KeySnapshots,
			KeyRecordings,
			KeyEvents,
			KeyMetadata,
			KeyExportedAt,
			KeyGatewayVersion,
		},
		Blocked: mapset.NewSet(KeyCoreTrust),
		Locked:  mapset.NewSet(KeyMapping, KeyExportedAt, KeyGatewayVersion),
		Dependents: map[string][]string{
			KeyChannels: {KeySnapshots, KeyRecordings, KeyEvents, KeyMetadata},
		},
	}
}

// Allowed reports whether key may be sent.
func (c Catalog) Allowed(key string) bool {
	if c.Blocked == nil {
		return true
	}
	blocked := false
	c.Blocked.Each(func(b string) bool {
		blocked = strings.EqualFold(b, key)
		return blocked
	})
	return !blocked
}

// IsLocked reports whether key is always sent.
func (c Catalog) IsLocked(key string) bool {
	return c.Locked != nil && c.Locked.Contains(key)
}

// Parent returns the section key depends on.
func (c Catalog) Parent(key string) (string, bool) {
	for parent, deps := range c.Dependents {
		for _, d := range deps {
			if d == key {
				return parent, true
			}
		}
	}
	return "", false
}
