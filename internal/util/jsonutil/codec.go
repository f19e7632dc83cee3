package jsonutil

import "encoding/json"

// Codec is a connect codec for plain Go structs. Registered under "json" it
// replaces the protobuf-only default, so handlers can exchange domain types.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) { return MarshalNoEscape(v) }

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
