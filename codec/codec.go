// Package codec converts RPC envelopes and argument payloads to bytes, and
// defines ClientCodec, the bridge between a method call and a wire request.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON    CodecType = 0
	CodecTypeBinary  CodecType = 1
	CodecTypeMsgpack CodecType = 2
)

var codecNames = map[string]CodecType{
	"json":    CodecTypeJSON,
	"binary":  CodecTypeBinary,
	"msgpack": CodecTypeMsgpack,
}

func (t CodecType) String() string {
	for name, ct := range codecNames {
		if ct == t {
			return name
		}
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

// Valid reports whether t names a known codec.
func (t CodecType) Valid() bool { return t <= CodecTypeMsgpack }

// ParseType maps a codec name ("json", "binary", "msgpack") to its type.
func ParseType(name string) (CodecType, error) {
	if ct, ok := codecNames[name]; ok {
		return ct, nil
	}
	return 0, fmt.Errorf("codec: unknown codec %q", name)
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the envelope codec for codecType.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeBinary:
		return &BinaryCodec{}
	case CodecTypeMsgpack:
		return &MsgpackCodec{}
	}
	return &JSONCodec{}
}

// PayloadCodec returns the codec used for arguments and replies inside an
// envelope of type codecType. The binary envelope carries JSON payloads.
func PayloadCodec(codecType CodecType) Codec {
	if codecType == CodecTypeMsgpack {
		return &MsgpackCodec{}
	}
	return &JSONCodec{}
}
