package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/containerd/errdefs"
)

// MalformedResponseError reports agent output that could not be parsed
// into structured data. Raw carries the offending text for diagnostics.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed agent response: %v", e.Err)
	}
	return "malformed agent response"
}

func (e *MalformedResponseError) Unwrap() error {
	return errdefs.ErrInvalidArgument
}

var keyPattern = regexp.MustCompile(`(\w+)\s*:`)

// ParseResponse extracts structured JSON from raw agent output.
//
// The primary path locates a fenced code block and parses its interior
// as JSON; without a fence the full text is parsed. For text that lacks
// JSON punctuation entirely ("key: value" prose), a degraded fallback
// splits on top-level identifier keys and yields a flat string-valued
// map. Callers must treat the fallback output as lower fidelity, never
// as equivalent to parsed JSON.
func ParseResponse(raw string) (map[string]any, error) {
	text := extractFenced(raw)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	} else if strings.ContainsAny(text, `{"`) {
		// Text carries JSON punctuation but does not parse: not a
		// candidate for the key:value fallback.
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}

	flat := parseMalformed(text)
	if len(flat) == 0 {
		return nil, &MalformedResponseError{Raw: raw}
	}
	degraded := make(map[string]any, len(flat))
	for k, v := range flat {
		degraded[k] = v
	}
	return degraded, nil
}

// DecodeResponse parses raw agent output and decodes it into out.
func DecodeResponse(raw string, out any) error {
	parsed, err := ParseResponse(raw)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("remarshal parsed response: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return &MalformedResponseError{Raw: raw, Err: err}
	}
	return nil
}

// extractFenced returns the interior of the first fenced code block, or
// the trimmed input when no fence is present.
func extractFenced(raw string) string {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+len("```"):]
	} else {
		return text
	}
	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// parseMalformed heuristically splits "key: value" prose into a flat
// string-valued map. Everything between one key and the next key (or end
// of text) is that key's raw value, trailing separators stripped.
func parseMalformed(text string) map[string]string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "{")
	text = strings.TrimSuffix(text, "}")

	matches := keyPattern.FindAllStringSubmatchIndex(text, -1)
	result := make(map[string]string, len(matches))
	for i, m := range matches {
		key := text[m[2]:m[3]]
		valueStart := m[1]
		valueEnd := len(text)
		if i < len(matches)-1 {
			valueEnd = matches[i+1][0]
		}
		value := strings.TrimSpace(text[valueStart:valueEnd])
		value = strings.TrimSpace(strings.TrimSuffix(value, ","))
		result[key] = value
	}
	return result
}
