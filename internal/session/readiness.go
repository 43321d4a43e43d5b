package session

import (
	"fmt"
	"strings"

	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/payload"
	"github.com/omniaweb/hnmigrate/internal/rewrite"
)

// AuthState is what the transport layer knows about the destination.
type AuthState struct {
	BaseURL string
	Token   string
}

// Readiness tells whether an import may be submitted and, if not, why.
type Readiness struct {
	Ready   bool     `json:"ready"`
	Reasons []string `json:"reasons,omitempty"`
}

// Readiness evaluates the state against auth.
func (s *State) Readiness(auth AuthState) Readiness {
	var reasons []string
	if strings.TrimSpace(auth.BaseURL) == "" {
		reasons = append(reasons, "base URL is not set")
	}
	if auth.Token == "" {
		reasons = append(reasons, "not logged in")
	}
	reasons = append(reasons, s.Problems()...)
	return Readiness{Ready: len(reasons) == 0, Reasons: reasons}
}

// Problems lists what the loaded data alone lacks for an import. With CHANNELS
// selected, the export must carry channels, both mappings must be loaded and
// every old service must be associated. Without it, an association set that
// exists must still be complete.
func (s *State) Problems() []string {
	if s.Payload == nil || s.Selection == nil {
		return []string{"no export loaded"}
	}

	var reasons []string
	if len(s.Selection.Selected()) == 0 {
		reasons = append(reasons, "no section selected")
	}

	if s.Selection.IsSelected(payload.KeyChannels) {
		if s.Config() == nil {
			reasons = append(reasons, "export has no CHANNELS section")
		}
		if s.OldMapping() == nil || s.NewMapping == nil {
			reasons = append(reasons, "old and new mappings are both required")
			return reasons
		}
	}

	if s.Associations != nil && !s.AssociationsComplete() {
		reasons = append(reasons, fmt.Sprintf("%d services have no association", len(s.Associations.Unresolved())))
	}
	return reasons
}

// BuildImport produces the import body: the selected sections with every
// associated identifier rewritten. The loaded export is not modified, so the
// call can be repeated.
func (s *State) BuildImport() (*document.Value, rewrite.Result, error) {
	if reasons := s.Problems(); len(reasons) > 0 {
		return nil, rewrite.Result{}, &NotReadyError{Reasons: reasons}
	}

	plan := rewrite.NewPlan(s.AssociationMap(), s.OldServices())
	body, res, err := payload.Build(s.Payload, s.Selection, plan)
	if err != nil {
		return nil, rewrite.Result{}, fmt.Errorf("build import: %w", err)
	}
	return body, res, nil
}
