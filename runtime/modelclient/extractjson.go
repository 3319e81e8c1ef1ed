package modelclient

import (
	"encoding/json"
	"errors"
	"regexp"
)

// jsonBlockPattern matches JSON fenced inside a markdown code block, which
// LLMs commonly wrap their structured replies in despite being asked for raw
// JSON.
var jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")

// ErrNoJSON is returned when no JSON object could be located in the text.
var ErrNoJSON = errors.New("modelclient: no JSON object found in text")

// ExtractJSON finds the first balanced `{...}` substring in text and decodes
// it into v. Per spec §9, the core must not depend on strict JSON output from
// the LLM: this scans for the outermost balanced object rather than trusting
// that the entire response is valid JSON, and tolerates a markdown code fence
// around it. Callers treat a non-nil error as a signal to apply their
// documented fallback (selector: first candidate; planner: keyword table).
func ExtractJSON(text string, v any) error {
	raw := firstBalancedObject(text)
	if raw == "" {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(raw), v)
}

// firstBalancedObject returns the first balanced `{...}` substring in text,
// preferring one found inside a markdown code fence when present. Balance is
// tracked with a naive brace counter that ignores braces inside JSON string
// literals, so object values containing `{`/`}` characters in strings do not
// throw off the scan.
func firstBalancedObject(text string) string {
	if m := jsonBlockPattern.FindStringSubmatch(text); len(m) > 1 {
		if s := scanBalanced(m[1]); s != "" {
			return s
		}
	}
	return scanBalanced(text)
}

func scanBalanced(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
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
