// Package association pairs the services of a source gateway with those of a
// destination gateway.
package association

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/omniaweb/hnmigrate/internal/services"
)

// Origin records how a selection was made.
type Origin string

const (
	// OriginCount marks a selection made because the type had a single candidate.
	OriginCount Origin = "count"
	// OriginName marks a selection made by exact service name.
	OriginName Origin = "name"
	// OriginOperator marks an explicit operator choice.
	OriginOperator Origin = "operator"
)

var (
	// ErrUnknownService is returned when an identifier is not part of the set.
	ErrUnknownService = errors.New("unknown service")
	// ErrTypeMismatch is returned when old and new services differ in type.
	ErrTypeMismatch = errors.New("service types differ")
)

// Set holds the old and new service lists and the operator's selections.
// A Set is not safe for concurrent use.
type Set struct {
	old       []services.Descriptor
	new       []services.Descriptor
	oldByID   map[string]services.Descriptor
	newByID   map[string]services.Descriptor
	newByType map[string][]services.Descriptor
	selected  map[string]string
	origins   map[string]Origin
}

// Row is one old service with its candidates, as presented for selection.
type Row struct {
	Old        services.Descriptor   `json:"old"`
	Candidates []services.Descriptor `json:"candidates"`
	Selected   string                `json:"selected,omitempty"`
	Origin     Origin                `json:"origin,omitempty"`
}

// Build creates a Set and auto-selects what can be decided without the
// operator: a type with exactly one candidate is selected outright, otherwise
// a candidate whose name equals the old service's non-empty name is. Anything
// else stays unresolved.
func Build(oldServices, newServices []services.Descriptor) *Set {
	s := newSet(oldServices, newServices)

	for _, o := range s.old {
		candidates := s.newByType[o.Type]
		if len(candidates) == 1 {
			s.set(o.ID, candidates[0].ID, OriginCount)
			continue
		}
		if o.Name == "" {
			continue
		}
		for _, c := range candidates {
			if c.Name == o.Name {
				s.set(o.ID, c.ID, OriginName)
				break
			}
		}
	}
	return s
}

func newSet(oldServices, newServices []services.Descriptor) *Set {
	s := &Set{
		old:       append([]services.Descriptor(nil), oldServices...),
		new:       append([]services.Descriptor(nil), newServices...),
		oldByID:   make(map[string]services.Descriptor, len(oldServices)),
		newByID:   make(map[string]services.Descriptor, len(newServices)),
		newByType: make(map[string][]services.Descriptor),
		selected:  make(map[string]string),
		origins:   make(map[string]Origin),
	}
	for _, o := range s.old {
		s.oldByID[o.ID] = o
	}
	for _, n := range s.new {
		s.newByID[n.ID] = n
		s.newByType[n.Type] = append(s.newByType[n.Type], n)
	}
	return s
}

func (s *Set) set(oldID, newID string, origin Origin) {
	s.selected[oldID] = newID
	s.origins[oldID] = origin
}

// Select records the operator's choice of newID for oldID.
func (s *Set) Select(oldID, newID string) error {
	o, ok := s.oldByID[oldID]
	if !ok {
		return fmt.Errorf("old service %q: %w", oldID, ErrUnknownService)
	}
	n, ok := s.newByID[newID]
	if !ok {
		return fmt.Errorf("new service %q: %w", newID, ErrUnknownService)
	}
	if o.Type != n.Type {
		return fmt.Errorf("%s is %s, %s is %s: %w", oldID, o.Type, newID, n.Type, ErrTypeMismatch)
	}
	s.set(oldID, newID, OriginOperator)
	return nil
}

// Clear removes the selection for oldID.
func (s *Set) Clear(oldID string) {
	delete(s.selected, oldID)
	delete(s.origins, oldID)
}

// Candidates returns the new services sharing oldID's type.
func (s *Set) Candidates(oldID string) []services.Descriptor {
	o, ok := s.oldByID[oldID]
	if !ok {
		return nil
	}
	return append([]services.Descriptor(nil), s.newByType[o.Type]...)
}

// Selection returns the new identifier chosen for oldID and how it was chosen.
func (s *Set) Selection(oldID string) (string, Origin, bool) {
	newID, ok := s.selected[oldID]
	return newID, s.origins[oldID], ok
}

// Old returns the old services.
func (s *Set) Old() []services.Descriptor {
	return append([]services.Descriptor(nil), s.old...)
}

// New returns the new services.
func (s *Set) New() []services.Descriptor {
	return append([]services.Descriptor(nil), s.new...)
}

// Map returns a copy of the old to new identifier map.
func (s *Set) Map() map[string]string {
	out := make(map[string]string, len(s.selected))
	for k, v := range s.selected {
		out[k] = v
	}
	return out
}

// Unresolved returns the old services without a selection, in list order.
func (s *Set) Unresolved() []services.Descriptor {
	var out []services.Descriptor
	for _, o := range s.old {
		if _, ok := s.selected[o.ID]; !ok {
			out = append(out, o)
		}
	}
	return out
}

// Rows returns one row per old service, in list order.
func (s *Set) Rows() []Row {
	rows := make([]Row, 0, len(s.old))
	for _, o := range s.old {
		row := Row{
			Old:        o,
			Candidates: s.Candidates(o.ID),
		}
		if newID, ok := s.selected[o.ID]; ok {
			row.Selected = newID
			row.Origin = s.origins[o.ID]
		}
		rows = append(rows, row)
	}
	return rows
}

// Complete reports whether every old service has a selection.
func (s *Set) Complete() bool {
	return IsComplete(s.old, s.selected)
}

// IsComplete reports whether every old service of a re-associable type has
// an entry in m. An empty list is complete.
func IsComplete(oldServices []services.Descriptor, m map[string]string) bool {
	for _, o := range oldServices {
		if services.ExcludedTypes[o.Type] {
			continue
		}
		if _, ok := m[o.ID]; !ok {
			return false
		}
	}
	return true
}

type selectionJSON struct {
	NewID  string `json:"new"`
	Origin Origin `json:"origin"`
}

type setJSON struct {
	Old        []services.Descriptor    `json:"old"`
	New        []services.Descriptor    `json:"new"`
	Selections map[string]selectionJSON `json:"selections"`
}

// MarshalJSON encodes the service lists and selections.
func (s *Set) MarshalJSON() ([]byte, error) {
	out := setJSON{
		Old:        s.old,
		New:        s.new,
		Selections: make(map[string]selectionJSON, len(s.selected)),
	}
	for oldID, newID := range s.selected {
		out.Selections[oldID] = selectionJSON{NewID: newID, Origin: s.origins[oldID]}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a Set. Selections that no longer fit the service
// lists are rejected.
func (s *Set) UnmarshalJSON(data []byte) error {
	var in setJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	restored := newSet(in.Old, in.New)
	for oldID, sel := range in.Selections {
		if err := restored.Select(oldID, sel.NewID); err != nil {
			return fmt.Errorf("restore selection: %w", err)
		}
		origin := sel.Origin
		if origin == "" {
			origin = OriginOperator
		}
		restored.origins[oldID] = origin
	}
	*s = *restored
	return nil
}
