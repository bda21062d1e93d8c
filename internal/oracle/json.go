package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeObject finds and unmarshals the first JSON object in a model
// response, tolerating code fences and surrounding prose.
func decodeObject(raw string) (map[string]interface{}, error) {
	jsonStr := extractJSONBlock(raw)
	if jsonStr == "" {
		jsonStr = extractJSONObject(raw)
	}
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return parsed, nil
}

// extractJSONBlock extracts JSON from a ```json ... ``` code block.
func extractJSONBlock(s string) string {
	start := strings.Index(s, "```json")
	if start == -1 {
		start = strings.Index(s, "```")
		if start == -1 {
			return ""
		}
	}

	nl := strings.Index(s[start:], "\n")
	if nl == -1 {
		return ""
	}
	start += nl + 1

	end := strings.LastIndex(s, "```")
	if end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(s[start:end])
}

// extractJSONObject extracts the first brace-balanced JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
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
