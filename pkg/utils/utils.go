package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrJSON produces a standard JSON error response.
func ErrJSON(msg string) map[string]any {
	return map[string]any{
		"success": false,
		"error":   msg,
	}
}

// ErrDetails is ErrJSON with the upstream reason attached.
func ErrDetails(msg string, details any) map[string]any {
	m := ErrJSON(msg)
	if details != nil && details != "" {
		m["details"] = details
	}
	return m
}

// LimitStr truncates s to n runes, appending "..." when shortened.
func LimitStr(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// SanitizeFilename makes a name safe for a Content-Disposition header.
func SanitizeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_",
		"\"", "_", "\r", "", "\n", "",
	).Replace(s)
	return strings.TrimSpace(s)
}

var (
	asciiSpaceRX = regexp.MustCompile(`[\r\n\t]`)
	nonASCIIRX   = regexp.MustCompile(`[^\x20-\x7E]`)
	quoteRX      = regexp.MustCompile(`[\\"']`)
)

// ASCIIFilename keeps the extension of original and replaces everything
// outside printable ASCII in the base name, for vendors that reject
// non-ASCII multipart filenames.
func ASCIIFilename(original string) string {
	name := strings.TrimSpace(original)
	if name == "" {
		name = "attachment"
	}

	base, ext := name, ""
	if dot := strings.LastIndex(name, "."); dot > 0 {
		base, ext = name[:dot], strings.ToLower(name[dot:])
	}

	base = asciiSpaceRX.ReplaceAllString(base, " ")
	base = nonASCIIRX.ReplaceAllString(base, "_")
	base = strings.TrimSpace(quoteRX.ReplaceAllString(base, "_"))
	if base == "" {
		base = "attachment"
	}
	return base + ext
}

// StringContains checks if s contains any of the substrings in substr.
// An empty substring matches only an empty string. Set sensitive to true for case-sensitive match.
func StringContains(s string, sensitive bool, substr ...string) bool {
	if !sensitive {
		s = strings.ToLower(s)
	}
	for _, sub := range substr {
		if sub == "" && s == "" {
			return true
		}
		if !sensitive {
			sub = strings.ToLower(sub)
		}
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// HasSuffixFold reports whether s ends with any suffix, ignoring case.
func HasSuffixFold(s string, suffixes ...string) bool {
	s = strings.ToLower(s)
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
