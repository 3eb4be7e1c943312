// Package jsonextract pulls a JSON object out of free-form model output,
// which often wraps the object in prose or markdown fences.
package jsonextract

import "strings"

// FirstObject returns the first balanced {...} span in s. Braces inside JSON
// string literals, including escaped quotes, do not count. A '{' that never
// closes, such as a stray brace in prose, is skipped and the scan resumes at
// the next one. ok is false when no balanced object exists. The span is not
// validated as JSON.
func FirstObject(s string) (obj string, ok bool) {
	for offset := 0; offset < len(s); {
		i := strings.IndexByte(s[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i
		if end, found := matchBrace(s, start); found {
			return s[start : end+1], true
		}
		offset = start + 1
	}
	return "", false
}

// matchBrace returns the index of the '}' closing the '{' at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
