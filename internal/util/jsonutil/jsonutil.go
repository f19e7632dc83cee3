package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// MarshalNoEscape encodes v without escaping <, > and &. Map keys are sorted
// by encoding/json, so equal values always produce equal bytes.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalIndentNoEscape is MarshalNoEscape with two-space indentation.
func MarshalIndentNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalFlex unmarshals raw into v, retrying once after normalizing
// double-escaped unicode and quoted-JSON answers that models sometimes emit.
func UnmarshalFlex(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}
	norm, err := NormalizeJSONUnicode(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

// NormalizeJSONUnicode parses raw, unwrapping up to two levels of string
// quoting, and unescapes leftover "\\u003e" sequences inside string values.
func NormalizeJSONUnicode(raw []byte) ([]byte, error) {
	var val any
	for depth := 0; ; depth++ {
		if err := json.Unmarshal(raw, &val); err != nil {
			return nil, err
		}
		s, quoted := val.(string)
		if !quoted || depth == 2 {
			break
		}
		trimmed := strings.TrimSpace(s)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			break
		}
		raw = []byte(trimmed)
	}
	if _, ok := val.(string); ok {
		return nil, errors.New("jsonutil: payload is a string, not a JSON document")
	}
	return MarshalNoEscape(deepUnescape(val))
}

// unicodeReplacer quotes s as a JSON string body while leaving backslash
// escapes in place for the decoder to resolve.
var unicodeReplacer = strings.NewReplacer(`"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func unescapeUnicode(s string) (string, error) {
	esc := unicodeReplacer.Replace(s)
	var out string
	if err := json.Unmarshal([]byte(`"`+esc+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		if !strings.Contains(x, `\u`) {
			return x
		}
		if s, err := unescapeUnicode(x); err == nil {
			return s
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepUnescape(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = deepUnescape(vv)
		}
		return out
	default:
		return v
	}
}
