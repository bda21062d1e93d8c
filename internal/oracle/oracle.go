// Package oracle is the generation boundary: given a prompt and the set
// of fields the caller expects back, return structured string content or
// fail. The pipeline treats this capability as opaque and never retries.
package oracle

import (
	"context"
	"fmt"
	"strings"
)

// Client produces structured content for a prompt. Implementations must
// return a map containing every requested field with non-empty content,
// or an error; a missing or blank required field is a failure, never a
// success with empty content.
type Client interface {
	Generate(ctx context.Context, prompt string, fields []string) (map[string]string, error)
}

// parseFields extracts the requested fields from a raw model response.
// The response may be a bare JSON object, a fenced ```json block, or JSON
// surrounded by prose; anything else fails.
func parseFields(raw string, fields []string) (map[string]string, error) {
	parsed, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(fields))
	for _, field := range fields {
		val, ok := parsed[field]
		if !ok {
			return nil, fmt.Errorf("response is missing field %q", field)
		}
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("field %q is not a string", field)
		}
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("field %q is empty", field)
		}
		out[field] = s
	}
	return out, nil
}
