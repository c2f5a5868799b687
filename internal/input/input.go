// Package input normalizes list-valued command-line arguments. Each list
// flag takes a JSON array; comments and trailing commas are tolerated.
package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/kokistudios/ultrathink/internal/thinking"
)

// Assumptions parses the assumptions flag. An empty value or "null" yields
// nil.
func Assumptions(raw string) ([]thinking.Assumption, error) {
	data, err := list("assumptions", raw)
	if err != nil || data == nil {
		return nil, err
	}
	var out []thinking.Assumption
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: assumptions: %v", thinking.ErrInvalidRequest, err)
	}
	return out, nil
}

// IDs parses a list of assumption references such as depends-on or
// invalidates.
func IDs(field, raw string) ([]string, error) {
	data, err := list(field, raw)
	if err != nil || data == nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s must be a list of strings: %v", thinking.ErrInvalidRequest, field, err)
	}
	return out, nil
}

// list returns the JSON array text in raw, or nil when raw is empty.
func list(field, raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	data := bytes.TrimSpace(jsonc.ToJSON([]byte(raw)))
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s must be valid JSON", thinking.ErrInvalidRequest, field)
	}
	if data[0] != '[' {
		return nil, fmt.Errorf("%w: %s must be a list or valid JSON string representing a list. Got type: %s",
			thinking.ErrInvalidRequest, field, kind(data[0]))
	}
	return data, nil
}

func kind(first byte) string {
	switch first {
	case '{':
		return "object"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
