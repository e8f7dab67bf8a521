package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"callproxy/message"
)

// BinaryCodec encodes *message.RPCMessage as length-prefixed fields:
//
//	u16 len | ServiceMethod | u32 len | Payload | u16 len | Error | u16 len | ErrorKind
//
// All lengths are big-endian.
type BinaryCodec struct{}

var errNotMessage = errors.New("BinaryCodec: v must be *RPCMessage")

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return nil, errNotMessage
	}
	for _, s := range []string{msg.ServiceMethod, msg.Error, msg.ErrorKind} {
		if len(s) > math.MaxUint16 {
			return nil, fmt.Errorf("BinaryCodec: field of %d bytes exceeds limit", len(s))
		}
	}
	if uint64(len(msg.Payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("BinaryCodec: payload of %d bytes exceeds limit", len(msg.Payload))
	}

	buf := make([]byte, 0, 10+len(msg.ServiceMethod)+len(msg.Payload)+len(msg.Error)+len(msg.ErrorKind))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.ServiceMethod)))
	buf = append(buf, msg.ServiceMethod...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Payload)))
	buf = append(buf, msg.Payload...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.Error)))
	buf = append(buf, msg.Error...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.ErrorKind)))
	buf = append(buf, msg.ErrorKind...)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return errNotMessage
	}
	r := binReader{data: data}
	msg.ServiceMethod = string(r.field(2))
	if p := r.field(4); p != nil {
		msg.Payload = append([]byte(nil), p...)
	} else {
		msg.Payload = nil
	}
	msg.Error = string(r.field(2))
	msg.ErrorKind = string(r.field(2))
	if r.err != nil {
		return r.err
	}
	if len(r.data) != 0 {
		return fmt.Errorf("BinaryCodec: %d trailing bytes", len(r.data))
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// binReader consumes length-prefixed fields; the first short read sticks.
type binReader struct {
	data []byte
	err  error
}

func (r *binReader) field(prefix int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < prefix {
		r.err = errors.New("BinaryCodec: truncated length")
		return nil
	}
	var n int
	if prefix == 2 {
		n = int(binary.BigEndian.Uint16(r.data))
	} else {
		n = int(binary.BigEndian.Uint32(r.data))
	}
	r.data = r.data[prefix:]
	if len(r.data) < n {
		r.err = fmt.Errorf("BinaryCodec: truncated field, want %d bytes, have %d", n, len(r.data))
		return nil
	}
	f := r.data[:n:n]
	r.data = r.data[n:]
	if n == 0 {
		return nil
	}
	return f
}
