package textutil

import "strings"

// SanitizeFileName makes an externally supplied name safe to embed in a
// vault record name. Path separators and other reserved characters become
// dashes, quoting characters and control bytes are dropped, and
// surrounding whitespace and dots are trimmed so a dropped file cannot
// name itself out of its stage directory or hide as a dotfile.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*':
			b.WriteByte('-')
		case r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " .")
}

// SanitizeToken reduces a value to a lowercase token for the middle of a
// record name such as FINANCE_<token>_001.md. Anything outside
// [a-z0-9_-] becomes an underscore; a value with nothing salvageable
// comes back as "unknown" rather than an empty component.
func SanitizeToken(value string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	mapped = strings.Trim(mapped, "_-")
	if mapped == "" {
		return "unknown"
	}
	return mapped
}
