package router

import (
	"encoding/json"
	"strings"
)

// directiveMarker is the literal substring the assistant persona emits when
// it wants a question delegated to the catalog. Cheap to check before any
// JSON parsing is attempted.
const directiveMarker = `"use_store_api": true`

// Directive is the structured delegation request embedded in model output.
type Directive struct {
	UseStoreAPI bool   `json:"use_store_api"`
	Query       string `json:"query"`
}

// DirectiveOutcome distinguishes the expected "no directive" case from a
// directive that was signalled but failed to parse. Both fall back to the
// same user-visible behavior; only the logging differs.
type DirectiveOutcome int

const (
	DirectiveNone DirectiveOutcome = iota
	DirectiveFound
	DirectiveParseError
)

// InterpretDirective inspects model output for a delegation directive.
// Returns DirectiveNone when the marker is absent, DirectiveFound with the
// parsed directive when it parses cleanly, and DirectiveParseError when the
// marker is present but the content cannot be parsed. Never fails.
func InterpretDirective(content string) (Directive, DirectiveOutcome) {
	if !strings.Contains(content, directiveMarker) {
		return Directive{}, DirectiveNone
	}

	trimmed := strings.TrimSpace(content)

	// Fast path: the whole reply is the directive object.
	var d Directive
	if err := json.Unmarshal([]byte(trimmed), &d); err == nil && d.UseStoreAPI {
		return d, DirectiveFound
	}

	// Models sometimes wrap the object in prose or code fences; locate the
	// first balanced JSON object and try that.
	if start, end := jsonObjectBounds(trimmed); start >= 0 {
		var embedded Directive
		if err := json.Unmarshal([]byte(trimmed[start:end]), &embedded); err == nil && embedded.UseStoreAPI {
			return embedded, DirectiveFound
		}
	}

	return Directive{}, DirectiveParseError
}

// jsonObjectBounds locates the first top-level JSON object in s, returning
// the start index and end+1 index, or (-1, -1) if none closes.
func jsonObjectBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}
