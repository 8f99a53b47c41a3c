package mcpservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownTool is returned when no tool is registered under a name.
var ErrUnknownTool = errors.New("unknown tool")

// InvalidInputError reports the field that failed validation and why. Field
// is empty when the arguments as a whole are malformed.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input for field %q: %s", e.Field, e.Reason)
}

// Validate checks raw arguments against the tool spec and returns them as a JSON
// object with defaults filled in. An empty or null payload is treated as {}.
func (s ToolSpec) Validate(raw json.RawMessage) (json.RawMessage, error) {
	args := map[string]json.RawMessage{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' {
			return nil, &InvalidInputError{Reason: "arguments must be a JSON object"}
		}
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, &InvalidInputError{Reason: fmt.Sprintf("malformed arguments: %v", err)}
		}
	}

	if !s.AllowAdditionalProps {
		var unknown []string
		for k := range args {
			if _, ok := s.Fields[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, &InvalidInputError{Field: unknown[0], Reason: "unknown field"}
		}
	}

	out := make(map[string]any, len(s.Fields))
	for k, v := range args {
		if _, declared := s.Fields[k]; !declared {
			out[k] = v
		}
	}

	for _, name := range s.Order {
		f := s.Fields[name]
		rawVal, present := args[name]
		if present && !bytes.Equal(bytes.TrimSpace(rawVal), []byte("null")) {
			v, err := decodeValue(rawVal)
			if err != nil {
				return nil, &InvalidInputError{Field: name, Reason: err.Error()}
			}
			if err := checkType(f.Type, v); err != nil {
				return nil, &InvalidInputError{Field: name, Reason: err.Error()}
			}
			if len(f.Enum) > 0 && !enumContains(f.Enum, v) {
				return nil, &InvalidInputError{Field: name, Reason: "must be one of " + enumList(f.Enum)}
			}
			out[name] = v
			continue
		}
		switch {
		case f.Default != nil:
			out[name] = f.Default
		case f.Required:
			return nil, &InvalidInputError{Field: name, Reason: "required field is missing"}
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("cannot encode arguments: %v", err)}
	}
	return b, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("malformed value: %v", err)
	}
	return v, nil
}

func checkType(typ string, v any) error {
	ok := true
	switch typ {
	case "", "any":
	case "string":
		_, ok = v.(string)
	case "boolean":
		_, ok = v.(bool)
	case "number":
		_, ok = v.(json.Number)
	case "integer":
		n, isNum := v.(json.Number)
		ok = isNum
		if isNum {
			if _, err := n.Int64(); err != nil {
				return fmt.Errorf("expected integer, got %s", n)
			}
		}
	case "object":
		_, ok = v.(map[string]any)
	case "array":
		_, ok = v.([]any)
	}
	if !ok {
		return fmt.Errorf("expected %s, got %s", typ, jsonKind(v))
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "null"
	}
}

func enumContains(enum []any, v any) bool {
	vb, err := json.Marshal(v)
	if err != nil {
		return false
	}
	for _, e := range enum {
		eb, err := json.Marshal(e)
		if err == nil && bytes.Equal(eb, vb) {
			return true
		}
	}
	return false
}

func enumList(enum []any) string {
	parts := make([]string, 0, len(enum))
	for _, e := range enum {
		parts = append(parts, fmt.Sprint(e))
	}
	return strings.Join(parts, ", ")
}
