// Package textnorm normalizes and validates user-entered text fields.
package textnorm

import (
	"html"
	"net/mail"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	slugRe       = regexp.MustCompile(`^[a-z0-9-]+$`)
	branchCodeRe = regexp.MustCompile(`^[A-Z0-9]+$`)
	strict       = bluemonday.StrictPolicy()
)

// Email trims and lowercases an address. Invitations are keyed on this form.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s is a bare address such as "a@b.co".
// Display-name forms ("Ann <a@b.co>") are rejected.
func ValidEmail(s string) bool {
	if s == "" || !strings.Contains(s, "@") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

func Slug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func ValidSlug(s string) bool {
	return len(s) >= 2 && slugRe.MatchString(s)
}

func BranchCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func ValidBranchCode(s string) bool {
	return branchCodeRe.MatchString(s)
}

// Plain strips any markup from free text and trims it. Entities produced by
// the sanitizer are decoded so "Fish & Chips" round-trips unchanged.
func Plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Optional returns nil for blank input, otherwise the sanitized value.
func Optional(s string) *string {
	v := Plain(s)
	if v == "" {
		return nil
	}
	return &v
}
