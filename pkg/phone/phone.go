// Package phone normalizes phone numbers for use as session keys.
package phone

import "strings"

// Normalize reduces a phone number to E.164-like form: a leading "+"
// followed by digits only. Input may contain spaces, dashes, parentheses.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// SafeKey returns a filesystem-safe key for a phone number (digits only).
func SafeKey(s string) string {
	return strings.TrimPrefix(Normalize(s), "+")
}
