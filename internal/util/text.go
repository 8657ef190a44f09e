package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeText drops invalid UTF-8 and NUL bytes, then trims surrounding
// whitespace.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	sanitized = strings.ReplaceAll(sanitized, "\x00", "")
	return strings.TrimSpace(sanitized)
}

// CapitalizeFirst upper-cases the first rune and leaves the rest untouched.
func CapitalizeFirst(value string) string {
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError {
		return value
	}
	return string(unicode.ToUpper(r)) + value[size:]
}
