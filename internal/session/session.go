// Package session holds the operator's in-progress migration: the loaded
// export, both service mappings, the association choices and the section
// selection.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/omniaweb/hnmigrate/internal/association"
	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/payload"
	"github.com/omniaweb/hnmigrate/internal/services"
)

var (
	// ErrNoExport is returned by operations that need a loaded export.
	ErrNoExport = errors.New("no export loaded")
	// ErrNoAssociations is returned when old and new mappings are not both loaded.
	ErrNoAssociations = errors.New("old and new mappings are both required")
	// ErrNotReady is returned by BuildImport when the state cannot be imported.
	ErrNotReady = errors.New("import not ready")
)

// NotReadyError lists why an import cannot be built.
type NotReadyError struct {
	Reasons []string
}

func (e *NotReadyError) Error() string {
	return "import not ready: " + strings.Join(e.Reasons, "; ")
}

// Unwrap makes errors.Is(err, ErrNotReady) hold.
func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// State is a migration in progress. It is not safe for concurrent use.
type State struct {
	ID           uuid.UUID          `json:"id"`
	SourceName   string             `json:"source_name,omitempty"`
	LoadedAt     time.Time          `json:"loaded_at,omitempty"`
	Payload      *payload.Payload   `json:"payload,omitempty"`
	NewMapping   *document.Value    `json:"new_mapping,omitempty"`
	Associations *association.Set   `json:"associations,omitempty"`
	Selection    *payload.Selection `json:"selection,omitempty"`
}

// New returns an empty state.
func New() *State {
	return &State{ID: uuid.New()}
}

// LoadExport parses an export file and replaces the loaded export. On a
// parse error the previous export is dropped.
func (s *State) LoadExport(name string, data []byte) error {
	doc, err := document.Parse(data, document.FormatAuto)
	if err != nil {
		s.Payload = nil
		s.Selection = nil
		s.SourceName = ""
		s.rebuild()
		return fmt.Errorf("load %s: %w", name, err)
	}
	s.LoadExportDocument(name, doc)
	return nil
}

// LoadExportDocument replaces the loaded export with doc.
func (s *State) LoadExportDocument(name string, doc *document.Value) {
	catalog := payload.DefaultCatalog()
	s.SourceName = name
	s.LoadedAt = time.Now().UTC()
	s.Payload = payload.Extract(doc, catalog)
	s.Selection = payload.NewSelection(s.Payload, catalog)
	s.rebuild()
}

// SetNewMapping stores the destination gateway's mapping.
func (s *State) SetNewMapping(mapping *document.Value) {
	s.NewMapping = mapping
	s.rebuild()
}

// rebuild recomputes associations from scratch, discarding prior choices.
func (s *State) rebuild() {
	old := s.OldMapping()
	if old == nil || s.NewMapping == nil {
		s.Associations = nil
		return
	}
	s.Associations = association.Build(services.Extract(old), services.Extract(s.NewMapping))
}

// OldMapping returns the MAPPING section of the loaded export.
func (s *State) OldMapping() *document.Value {
	if s.Payload == nil {
		return nil
	}
	return s.Payload.Mapping()
}

// Config returns the CHANNELS section of the loaded export.
func (s *State) Config() *document.Value {
	if s.Payload == nil {
		return nil
	}
	return s.Payload.Config()
}

// OldServices returns the re-associable services of the loaded export.
func (s *State) OldServices() []services.Descriptor {
	return services.Extract(s.OldMapping())
}

// NewServices returns the re-associable services of the destination.
func (s *State) NewServices() []services.Descriptor {
	return services.Extract(s.NewMapping)
}

// Select records an operator association.
func (s *State) Select(oldID, newID string) error {
	if s.Associations == nil {
		return ErrNoAssociations
	}
	return s.Associations.Select(oldID, newID)
}

// Clear drops the association of oldID.
func (s *State) Clear(oldID string) error {
	if s.Associations == nil {
		return ErrNoAssociations
	}
	s.Associations.Clear(oldID)
	return nil
}

// Toggle switches a section on or off.
func (s *State) Toggle(key string, on bool) error {
	if s.Selection == nil {
		return ErrNoExport
	}
	return s.Selection.Toggle(key, on)
}

// SelectOnly sends exactly keys, plus the locked sections. Keys are matched
// case-insensitively.
func (s *State) SelectOnly(keys []string) error {
	if s.Selection == nil {
		return ErrNoExport
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if _, ok := s.Selection.State(k); !ok {
			return fmt.Errorf("%s: %w", k, payload.ErrNotEligible)
		}
		want[k] = true
	}

	// A rejected selection leaves s untouched.
	next := s.Selection.Clone()
	for _, key := range next.Toggleable() {
		st, _ := next.State(key)
		if st.Kind == payload.StateCascaded {
			continue
		}
		if err := next.Toggle(key, want[key]); err != nil {
			return err
		}
	}
	for key := range want {
		if !next.IsSelected(key) {
			return fmt.Errorf("%s: %w", key, payload.ErrDisabled)
		}
	}
	s.Selection = next
	return nil
}

// AssociationMap returns the confirmed old to new identifiers.
func (s *State) AssociationMap() map[string]string {
	if s.Associations == nil {
		return map[string]string{}
	}
	return s.Associations.Map()
}

// AssociationsComplete reports whether every old service is associated.
func (s *State) AssociationsComplete() bool {
	if s.OldMapping() == nil {
		return false
	}
	return association.IsComplete(s.OldServices(), s.AssociationMap())
}

// Summary recaps the loaded export.
func (s *State) Summary() payload.Summary {
	if s.Payload == nil {
		return payload.Summarize(nil)
	}
	return payload.Summarize(s.Payload.Document())
}

// Save writes the state as JSON, creating directories as needed.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load reads a state written by Save. A missing file yields a new state.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return &s, nil
}
