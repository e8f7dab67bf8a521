package codec

import (
	"encoding/json"
)

// JSONCodec uses encoding/json. It is readable and cross-language, at the
// cost of larger frames than the binary and msgpack codecs.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
