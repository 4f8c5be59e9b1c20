// Package jsonlenient extracts and repairs JSON objects from LM output that
// is "almost" JSON: wrapped in code fences, padded with chatty prose, or
// marred by trailing commas and line comments a strict decoder rejects.
package jsonlenient

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|yaml)?\\s*(.*?)\\s*```")

// StripFences removes the first fenced code block wrapper, if present,
// returning its inner content; otherwise returns s unchanged.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractObject locates the outermost balanced {...} in s, honoring string
// literals and escapes so braces inside JSON strings do not confuse the
// scan. Returns "" if no balanced object is found.
func ExtractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
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
				return s[start : i+1]
			}
		}
	}
	return ""
}

var (
	lineComment  = regexp.MustCompile(`(?m)//[^\n]*$`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// stripComments removes // and /* */ comments that are not valid JSON but
// are commonly emitted by LMs that treat their output as "JSON-ish".
func stripComments(s string) string {
	s = blockComment.ReplaceAllString(s, "")
	s = lineComment.ReplaceAllString(s, "")
	return s
}

// repairTrailingCommas removes a comma that directly precedes a closing
// brace or bracket.
func repairTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// Decode attempts to unmarshal raw LM output into v, applying increasingly
// aggressive repairs: (1) strict decode as-is, (2) strip fences + locate the
// outermost object, (3) strip comments and trailing commas on top of (2).
// Returns the exact text it finally decoded, for inclusion in error payloads.
func Decode(raw string, v any) (decoded string, err error) {
	trimmed := strings.TrimSpace(raw)
	if json.Unmarshal([]byte(trimmed), v) == nil {
		return trimmed, nil
	}

	candidate := ExtractObject(StripFences(trimmed))
	if candidate == "" {
		candidate = trimmed
	}
	if json.Unmarshal([]byte(candidate), v) == nil {
		return candidate, nil
	}

	repaired := repairTrailingCommas(stripComments(candidate))
	dec := json.NewDecoder(bytes.NewReader([]byte(repaired)))
	if decErr := dec.Decode(v); decErr == nil {
		return repaired, nil
	} else {
		err = decErr
	}
	return candidate, err
}
