package payload

import (
	"encoding/json"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/omniaweb/hnmigrate/internal/document"
)

var (
	// ErrLocked is returned when toggling a section that is always sent.
	ErrLocked = errors.New("section is locked")
	// ErrNotEligible is returned for sections that are unknown, blocked or
	// absent from the payload.
	ErrNotEligible = errors.New("section is not eligible")
	// ErrDisabled is returned when toggling a section whose parent is
	// deselected.
	ErrDisabled = errors.New("section is disabled by its parent")
)

// Kind is the selection state of one section.
type Kind int

const (
	StateSelected Kind = iota + 1
	StateUnselected
	// StateCascaded is forced off by a deselected parent.
	StateCascaded
	// StateLocked is always sent.
	StateLocked
)

var kindNames = map[Kind]string{
	StateSelected:   "selected",
	StateUnselected: "unselected",
	StateCascaded:   "cascaded",
	StateLocked:     "locked",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("invalid selection state %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("invalid selection state %q", text)
}

// State is the selection state of a section. PriorSelected is meaningful
// only for StateCascaded and records whether the section was selected when
// its parent was turned off.
type State struct {
	Kind          Kind `json:"state"`
	PriorSelected bool `json:"prior_selected,omitempty"`
}

// Sent reports whether the section goes into the import body.
func (s State) Sent() bool {
	return s.Kind == StateSelected || s.Kind == StateLocked
}

// Selection tracks which eligible sections are sent.
type Selection struct {
	catalog Catalog
	order   []string
	states  map[string]State
}

// NewSelection selects every eligible section of p. Locked sections are
// always sent.
func NewSelection(p *Payload, catalog Catalog) *Selection {
	s := &Selection{
		catalog: catalog,
		states:  make(map[string]State),
	}
	for _, key := range p.Keys() {
		if !catalog.Allowed(key) {
			continue
		}
		s.order = append(s.order, key)
		if catalog.IsLocked(key) {
			s.states[key] = State{Kind: StateLocked}
		} else {
			s.states[key] = State{Kind: StateSelected}
		}
	}
	return s
}

// State returns the state of key.
func (s *Selection) State(key string) (State, bool) {
	st, ok := s.states[key]
	return st, ok
}

// Eligible returns every eligible section in catalog order.
func (s *Selection) Eligible() []string {
	return append([]string(nil), s.order...)
}

// Toggleable returns the eligible sections the operator may switch.
func (s *Selection) Toggleable() []string {
	var out []string
	for _, key := range s.order {
		if s.states[key].Kind != StateLocked {
			out = append(out, key)
		}
	}
	return out
}

// Selected returns the sections that will be sent, in catalog order.
func (s *Selection) Selected() []string {
	var out []string
	for _, key := range s.order {
		if s.states[key].Sent() {
			out = append(out, key)
		}
	}
	return out
}

// Clone returns an independent copy of s.
func (s *Selection) Clone() *Selection {
	c := &Selection{
		catalog: s.catalog,
		order:   append([]string(nil), s.order...),
		states:  make(map[string]State, len(s.states)),
	}
	for k, st := range s.states {
		c.states[k] = st
	}
	return c
}

// IsSelected reports whether key will be sent.
func (s *Selection) IsSelected(key string) bool {
	return s.states[key].Sent()
}

// Toggle selects or deselects key. Deselecting a parent forces its present
// dependents off and remembers whether each was selected; selecting the
// parent again restores exactly those that were.
func (s *Selection) Toggle(key string, on bool) error {
	st, ok := s.states[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotEligible)
	}
	switch st.Kind {
	case StateLocked:
		return fmt.Errorf("%s: %w", key, ErrLocked)
	case StateCascaded:
		return fmt.Errorf("%s: %w", key, ErrDisabled)
	}

	want := StateUnselected
	if on {
		want = StateSelected
	}
	if st.Kind == want {
		return nil
	}
	s.states[key] = State{Kind: want}

	for _, dep := range s.catalog.Dependents[key] {
		depState, ok := s.states[dep]
		if !ok || depState.Kind == StateLocked {
			continue
		}
		if on {
			if depState.Kind != StateCascaded {
				continue
			}
			if depState.PriorSelected {
				s.states[dep] = State{Kind: StateSelected}
			} else {
				s.states[dep] = State{Kind: StateUnselected}
			}
			continue
		}
		s.states[dep] = State{Kind: StateCascaded, PriorSelected: depState.Kind == StateSelected}
	}
	return nil
}

type selectionJSON struct {
	Order  []string         `json:"order"`
	States map[string]State `json:"states"`
}

// MarshalJSON encodes the eligible sections and their states.
func (s *Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(selectionJSON{Order: s.order, States: s.states})
}

// UnmarshalJSON restores a selection against the default catalog.
func (s *Selection) UnmarshalJSON(data []byte) error {
	var in selectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	restored := &Selection{catalog: DefaultCatalog(), states: make(map[string]State)}
	for _, key := range in.Order {
		st, ok := in.States[key]
		if !ok {
			return fmt.Errorf("section %s has no state", key)
		}
		restored.order = append(restored.order, key)
		restored.states[key] = st
	}
	*s = *restored
	return nil
}

// Result is the outcome of SelectSections.
type Result struct {
	Eligible mapset.Set[string]
	Selected mapset.Set[string]
}

// SelectSections computes the eligible sections of doc and their default
// selection.
func SelectSections(doc *document.Value, catalog Catalog) Result {
	sel := NewSelection(Extract(doc, catalog), catalog)
	return Result{
		Eligible: mapset.NewSet(sel.Eligible()...),
		Selected: mapset.NewSet(sel.Selected()...),
	}
}
