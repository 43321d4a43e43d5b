package gateway

import (
	"strings"

	"github.com/omniaweb/hnmigrate/internal/document"
)

// AssociationResult reports the outcome of one association applied by an
// import.
type AssociationResult struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// UserResult reports the outcome of one user applied by an import.
type UserResult struct {
	Message     string `json:"message"`
	ServiceGUID string `json:"service_guid,omitempty"`
}

// Response is the result envelope of import and reset calls.
type Response struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message,omitempty"`
	Associations []AssociationResult `json:"associations,omitempty"`
	Users        []UserResult        `json:"users,omitempty"`
	Errors       []string            `json:"errors,omitempty"`
}

// ParseResponse reads a gateway result envelope. Unknown fields are ignored.
func ParseResponse(doc *document.Value) *Response {
	r := &Response{Message: text(doc.Get("message"))}
	r.Success, _ = doc.Get("success").BoolValue()

	data := doc.Get("data")
	for _, item := range data.Get("associationResults").Items() {
		r.Associations = append(r.Associations, AssociationResult{
			Type:    firstNonEmpty(text(item.Get("type")), "association"),
			Message: firstNonEmpty(text(item.Get("message")), "error"),
		})
	}
	for _, item := range data.Get("userResults").Items() {
		r.Users = append(r.Users, UserResult{
			Message:     firstNonEmpty(text(item.Get("message")), "error"),
			ServiceGUID: text(item.Get("serviceGuid")),
		})
	}
	for _, item := range data.Get("errors").Items() {
		r.Errors = append(r.Errors, text(item))
	}
	return r
}

// FormatImport renders an import result for display.
func (r *Response) FormatImport() string {
	var lines []string
	msg := r.Message
	if msg == "" {
		if r.Success {
			msg = "OK"
		} else {
			msg = "Import failed."
		}
	}
	lines = append(lines, msg)

	if len(r.Associations) > 0 {
		lines = append(lines, "", "Associations:")
		for _, a := range r.Associations {
			lines = append(lines, "- "+a.Type+": "+a.Message)
		}
	}
	if len(r.Users) > 0 {
		lines = append(lines, "", "Users:")
		for _, u := range r.Users {
			lines = append(lines, "- User: "+u.Message+" ("+firstNonEmpty(u.ServiceGUID, "N/D")+")")
		}
	}
	return strings.Join(append(lines, r.errorLines()...), "\n")
}

// FormatReset renders a reset result for display.
func (r *Response) FormatReset() string {
	var lines []string
	if r.Message != "" {
		lines = append(lines, r.Message)
	}
	lines = append(lines, r.errorLines()...)
	if len(lines) == 0 {
		if r.Success {
			return "OK"
		}
		return "Reset failed."
	}
	return strings.TrimLeft(strings.Join(lines, "\n"), "\n")
}

func (r *Response) errorLines() []string {
	if len(r.Errors) == 0 {
		return nil
	}
	lines := []string{"", "Errors:"}
	for _, e := range r.Errors {
		lines = append(lines, "- "+e)
	}
	return lines
}
