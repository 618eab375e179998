// Package security holds input hardening helpers for values that end up in
// file names on the user's disk.
package security

import "strings"

// maxFilenameLen bounds sanitized components.
const maxFilenameLen = 128

// SanitizeFilename turns an arbitrary identifier, such as a device IMEI typed
// by the user, into a single path component. Runs of characters other than
// ASCII letters, digits, '.', '_' and '-' become one underscore, leading and
// trailing dots and underscores are trimmed, and the result is capped at
// maxFilenameLen bytes. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		if safeRune(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

func safeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return r == '.' || r == '_' || r == '-'
}
