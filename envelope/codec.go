package envelope

import (
	"encoding/json"
)

// Codec encodes and decodes envelope bodies. Implementations must be safe
// for concurrent use.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	// ContentType is attached to every published message.
	ContentType() string
}

// JSONCodec is the default codec. Every backend speaks JSON.
type JSONCodec struct{}

// Encode marshals v. Pre-encoded []byte and json.RawMessage values pass
// through unchanged.
func (JSONCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case nil:
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Decode unmarshals data into v. A *[]byte target receives the raw bytes.
func (JSONCodec) Decode(data []byte, v any) error {
	if b, ok := v.(*[]byte); ok {
		*b = data
		return nil
	}
	return json.Unmarshal(data, v)
}

// ContentType implements Codec.
func (JSONCodec) ContentType() string { return "application/json" }

// Default is used when no codec is configured.
var Default Codec = JSONCodec{}
