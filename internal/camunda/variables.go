// Package camunda is a client and worker runtime for a Camunda-compatible
// workflow engine, speaking the external-task REST protocol.
package camunda

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Variable is the engine's typed value representation.
type Variable struct {
	Value interface{} `json:"value"`
	Type  string      `json:"type"`
}

// Variables maps process variable names to typed values.
type Variables map[string]Variable

// Encode converts native Go values into engine-typed variables. Maps and
// slices become Json; nil becomes Null.
func Encode(values map[string]interface{}) Variables {
	out := make(Variables, len(values))
	for name, v := range values {
		out[name] = encodeOne(v)
	}
	return out
}

func encodeOne(v interface{}) Variable {
	switch val := v.(type) {
	case nil:
		return Variable{Value: nil, Type: "Null"}
	case bool:
		return Variable{Value: val, Type: "Boolean"}
	case int:
		return Variable{Value: val, Type: "Integer"}
	case int32:
		return Variable{Value: val, Type: "Integer"}
	case int64:
		return Variable{Value: val, Type: "Integer"}
	case float32:
		return Variable{Value: val, Type: "Double"}
	case float64:
		return Variable{Value: val, Type: "Double"}
	case string:
		return Variable{Value: val, Type: "String"}
	default:
		body, err := json.Marshal(val)
		if err != nil {
			return Variable{Value: fmt.Sprintf("%v", val), Type: "String"}
		}
		return Variable{Value: string(body), Type: "Json"}
	}
}

// Decode converts engine variables back into native Go values. Json values
// and strings that parse as JSON objects or arrays are decoded.
func Decode(vars Variables) map[string]interface{} {
	out := make(map[string]interface{}, len(vars))
	for name, v := range vars {
		out[name] = decodeOne(v)
	}
	return out
}

func decodeOne(v Variable) interface{} {
	switch v.Type {
	case "Json":
		if s, ok := v.Value.(string); ok {
			var decoded interface{}
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
		return v.Value
	case "String":
		s, ok := v.Value.(string)
		if !ok {
			return v.Value
		}
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var decoded interface{}
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return decoded
			}
		}
		return s
	default:
		return v.Value
	}
}

// StringSlice coerces a decoded variable into a []string, tolerating the
// []interface{} shape JSON decoding produces.
func StringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// String coerces a decoded variable into a string.
func String(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
