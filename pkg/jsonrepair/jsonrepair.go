// Package jsonrepair recovers a single JSON object from free-form model output.
//
// Every function here is pure: text in, text (or a decoded object) out. The
// stages are exported so callers and tests can exercise them one at a time;
// Repair and Decode chain them in order.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoObject is returned when the repaired text parses but is not a JSON object.
var ErrNoObject = errors.New("jsonrepair: not a JSON object")

// ErrTrailingData is returned when the repaired text has content after the object.
var ErrTrailingData = errors.New("jsonrepair: trailing data after object")

var fenceRX = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")

// Decode runs every repair stage and parses the result. Keys named in dupKeys
// may appear more than once at the top level; their values are merged into a
// single array under the original key.
func Decode(text string, dupKeys ...string) (map[string]any, error) {
	repaired := Repair(text, dupKeys...)

	dec := json.NewDecoder(strings.NewReader(repaired))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("jsonrepair: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNoObject
	}

	MergeDuplicates(obj, dupKeys...)
	return obj, nil
}

// Repair applies the text stages without parsing.
func Repair(text string, dupKeys ...string) string {
	s := Candidate(text)
	s = Sanitize(s)
	s = EscapeStringControls(s)
	s = StripTrailingCommas(s)
	return RenameDuplicateKeys(s, dupKeys...)
}

// Candidate strips a byte-order mark and surrounding space, prefers the body of
// a ```json fence, and narrows the result to the first balanced top-level
// object. When no object is found the (unfenced) text is returned as is.
func Candidate(text string) string {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "\uFEFF"))
	if m := fenceRX.FindStringSubmatch(s); m != nil && m[1] != "" {
		s = m[1]
	}
	if obj, ok := FirstObject(s); ok {
		return obj
	}
	return s
}

// FirstObject returns the first top-level {...} span of s, ignoring braces
// inside string literals.
func FirstObject(s string) (string, bool) {
	var sc scanner
	depth, start := 0, -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if sc.step(rune(c)) {
			continue
		}
		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start >= 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// Sanitize drops control characters other than tab, newline and carriage
// return, and turns typographic quotes used as JSON delimiters into ASCII.
// Typographic quotes inside a string literal are content and are kept.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var in, esc, curly bool
	for _, r := range s {
		if strayControl(r) {
			continue
		}
		if in {
			switch {
			case esc:
				esc = false
			case r == '\\':
				esc = true
			case r == '"':
				in, curly = false, false
			case curly && curlyDouble(r):
				in, curly = false, false
				r = '"'
			}
			b.WriteRune(r)
			continue
		}
		switch {
		case r == '"':
			in = true
		case curlyDouble(r):
			in, curly = true, true
			r = '"'
		case r == '\u2018' || r == '\u2019':
			r = '\''
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// EscapeStringControls escapes raw line breaks, tabs and the Unicode line and
// paragraph separators that appear inside string literals.
func EscapeStringControls(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var in, esc bool
	for _, r := range s {
		if !in {
			if r == '"' {
				in = true
			}
			b.WriteRune(r)
			continue
		}
		if esc {
			esc = false
			b.WriteRune(r)
			continue
		}
		switch r {
		case '\\':
			esc = true
			b.WriteRune(r)
		case '"':
			in = false
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripTrailingCommas removes a comma that is followed only by whitespace and
// a closing brace or bracket. Commas inside string literals are untouched.
func StripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var sc scanner
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !sc.step(rune(c)) && c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// RenameDuplicateKeys renames the second and later occurrences of each named
// key in the top-level object to key__dup1, key__dup2, ... Only tokens in key
// position (followed by a colon) are considered.
func RenameDuplicateKeys(s string, keys ...string) string {
	if len(keys) == 0 {
		return s
	}
	watched := make(map[string]int, len(keys))
	for _, k := range keys {
		watched[k] = 0
	}

	var b strings.Builder
	b.Grow(len(s))

	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			end := stringEnd(s, i)
			token := s[i : end+1]
			if depth == 1 && isKey(s, end+1) {
				if name, err := strconv.Unquote(token); err == nil {
					if seen, ok := watched[name]; ok {
						watched[name] = seen + 1
						if seen > 0 {
							token = strconv.Quote(dupName(name, seen))
						}
					}
				}
			}
			b.WriteString(token)
			i = end
			continue
		case '{', '[':
			depth++
		case '}', ']':
			depth = max(0, depth-1)
		}
		b.WriteByte(c)
	}
	return b.String()
}

// MergeDuplicates folds key__dup1, key__dup2, ... back into key. Arrays are
// concatenated in order and objects are appended as single elements. Merging
// stops at the first missing suffix.
func MergeDuplicates(obj map[string]any, keys ...string) {
	for _, key := range keys {
		var merged []any
		merged = appendValue(merged, obj[key])

		for n := 1; ; n++ {
			k := dupName(key, n)
			v, ok := obj[k]
			if !ok {
				break
			}
			merged = appendValue(merged, v)
			delete(obj, k)
		}

		if len(merged) > 0 {
			obj[key] = merged
		}
	}
}

func appendValue(dst []any, v any) []any {
	switch v := v.(type) {
	case []any:
		return append(dst, v...)
	case map[string]any:
		return append(dst, v)
	}
	return dst
}

func dupName(key string, n int) string {
	return key + "__dup" + strconv.Itoa(n)
}

// scanner tracks whether the current character belongs to a string literal.
type scanner struct {
	in, esc bool
}

// step reports whether r is part of a string literal, quotes included.
func (sc *scanner) step(r rune) bool {
	if sc.in {
		switch {
		case sc.esc:
			sc.esc = false
		case r == '\\':
			sc.esc = true
		case r == '"':
			sc.in = false
		}
		return true
	}
	if r == '"' {
		sc.in = true
		return true
	}
	return false
}

// stringEnd returns the index of the quote closing the literal opened at i,
// or the last index of s when the literal is unterminated.
func stringEnd(s string, i int) int {
	esc := false
	for j := i + 1; j < len(s); j++ {
		switch {
		case esc:
			esc = false
		case s[j] == '\\':
			esc = true
		case s[j] == '"':
			return j
		}
	}
	return len(s) - 1
}

func isKey(s string, i int) bool {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i < len(s) && s[i] == ':'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func strayControl(r rune) bool {
	return (r >= 0x00 && r <= 0x08) || r == 0x0B || r == 0x0C || (r >= 0x0E && r <= 0x1F)
}

func curlyDouble(r rune) bool {
	return r == '\u201C' || r == '\u201D'
}
