package core

import (
	"regexp"
	"strings"
)

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9 -]`)
	slugSpaces     = regexp.MustCompile(`\s+`)
	slugHyphens    = regexp.MustCompile(`-+`)
)

// Slugify lowercases s, drops everything but ASCII letters, digits, spaces
// and hyphens, then turns runs of spaces and hyphens into single hyphens.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugDisallowed.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	return slugHyphens.ReplaceAllString(s, "-")
}

// AttachmentEntryName is the archive entry name of an expense attachment.
func AttachmentEntryName(e Expense, contentType string) string {
	base := Slugify(e.Date.String() + "-" + e.Category + "-" + e.Merchant + "-" + e.ID)
	if ext := ExtensionForContentType(contentType, e.Attachment); ext != "" {
		return base + "." + ext
	}
	return base
}
