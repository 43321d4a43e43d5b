package gateway

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFilenamePart replaces runs of characters unsafe in file names with
// an underscore.
func SanitizeFilenamePart(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

// ExportFilename is the local file name of an export taken at t.
func ExportFilename(t time.Time) string {
	return "export_" + t.Format("2006-01-02") + ".zip"
}

// Filename is the local file name a downloaded backup is saved under.
func (b Backup) Filename() string {
	name := SanitizeFilenamePart(firstNonEmpty(b.Label, b.Timestamp))
	if name == "" {
		name = "backup_download"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}
	return name
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CreatedTime parses CreatedAt. Numeric values are Unix milliseconds.
func (b Backup) CreatedTime() (time.Time, bool) {
	s := strings.TrimSpace(b.CreatedAt)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Describe renders the backup as "dd/mm/yyyy hh:mm (backup from <age>)" in
// now's location.
func (b Backup) Describe(now time.Time) string {
	created, ok := b.CreatedTime()
	if !ok {
		return fmt.Sprintf("%s (backup from time not available)", firstNonEmpty(b.Label, b.Timestamp))
	}
	created = created.In(now.Location())
	return fmt.Sprintf("%s (backup from %s)", created.Format("02/01/2006 15:04"), relativeAge(now.Sub(created)))
}

func relativeAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "less than a minute ago"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
