package gateway

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/omniaweb/hnmigrate/internal/document"
)

// AuthService is an authentication service offered at login.
type AuthService struct {
	GUID string `json:"guid"`
	Name string `json:"name,omitempty"`
}

// Label renders the service for selection lists.
func (a AuthService) Label() string {
	if a.Name == "" {
		return a.GUID
	}
	return a.GUID + " - " + a.Name
}

// NormalizeAuthServices accepts the several envelopes gateways use for the
// auth services list. Entries without a string identifier are dropped.
func NormalizeAuthServices(doc *document.Value) []AuthService {
	list := doc
	if !doc.IsArray() {
		list = firstTruthy(doc, []string{"authServices"}, []string{"data"}, []string{"root", "authServices"})
	}

	var out []AuthService
	for _, item := range list.Items() {
		guid, ok := firstTruthy(item, []string{"id"}, []string{"guid"}, []string{"authServiceGuid"}, []string{"serviceGuid"}).Str()
		if !ok || strings.TrimSpace(guid) == "" {
			continue
		}
		name := text(firstTruthy(item, []string{"name"}, []string{"authServiceName"}, []string{"serviceName"}, []string{"descr"}))
		out = append(out, AuthService{GUID: guid, Name: name})
	}
	return out
}

// AccessToken extracts the bearer token of a login response.
func AccessToken(doc *document.Value) string {
	tok := firstTruthy(doc,
		[]string{"root", "access_token"},
		[]string{"access_token"},
		[]string{"root", "accessToken"},
	)
	return text(tok)
}

// Backup is one server-side configuration backup.
type Backup struct {
	// Timestamp identifies the backup in download URLs.
	Timestamp string `json:"timestamp"`
	Label     string `json:"label"`
	CreatedAt string `json:"created_at,omitempty"`
}

var backupNamePattern = regexp.MustCompile(`(?i)^config-backup-(.+)\.json$`)

// NormalizeBackups accepts the several envelopes gateways use for the
// backups list. Entries may be plain timestamps or objects.
func NormalizeBackups(doc *document.Value) []Backup {
	if !doc.Truthy() {
		return nil
	}
	list := doc
	if !doc.IsArray() {
		list = firstTruthy(doc,
			[]string{"backups"},
			[]string{"data"},
			[]string{"root", "backups"},
			[]string{"root", "data"},
			[]string{"root"},
		)
	}

	var out []Backup
	for _, item := range list.Items() {
		if s, ok := item.Scalar(); ok {
			out = append(out, Backup{Timestamp: s, Label: s})
			continue
		}
		if !item.IsObject() {
			continue
		}

		name := firstTruthy(item, []string{"name"}, []string{"filename"}, []string{"file"})
		createdAt := text(firstTruthy(item, []string{"createdAt"}, []string{"created_at"}, []string{"created"}))
		timestamp := ""
		if s, ok := name.Str(); ok {
			timestamp = timestampFromName(s)
		}
		if timestamp == "" {
			timestamp = text(firstTruthy(item, []string{"timestamp"}, []string{"ts"}, []string{"time"}, []string{"id"}))
		}
		nameText := text(name)
		if timestamp == "" && nameText == "" && createdAt == "" {
			continue
		}

		out = append(out, Backup{
			Timestamp: firstNonEmpty(timestamp, createdAt, nameText),
			Label:     firstNonEmpty(createdAt, timestamp, nameText),
			CreatedAt: createdAt,
		})
	}
	return out
}

func timestampFromName(name string) string {
	if m := backupNamePattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return name[:len(name)-len(".json")]
	}
	return name
}

func firstTruthy(v *document.Value, paths ...[]string) *document.Value {
	for _, p := range paths {
		if c := v.Lookup(p...); c.Truthy() {
			return c
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func text(v *document.Value) string {
	if s, ok := v.Scalar(); ok {
		return s
	}
	if b, ok := v.BoolValue(); ok {
		return strconv.FormatBool(b)
	}
	if v == nil || v.IsNull() {
		return ""
	}
	return v.String()
}
