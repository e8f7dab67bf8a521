// Package protocol implements the frame format carried over a stream
// connection. Each frame is a fixed 14-byte header followed by BodyLen bytes:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ cpx  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"callproxy/codec"
)

const (
	Version    byte = 0x01
	HeaderSize int  = 14

	// MaxBodyLen bounds the body a peer may announce.
	MaxBodyLen = 16 << 20
)

// Magic identifies a frame of this protocol.
var Magic = [3]byte{'c', 'p', 'x'}

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0
	MsgTypeResponse  MsgType = 1
	MsgTypeHeartbeat MsgType = 2 // no body
)

func (t MsgType) valid() bool { return t <= MsgTypeHeartbeat }

var (
	ErrBadMagic   = errors.New("protocol: invalid magic number")
	ErrBadVersion = errors.New("protocol: unsupported version")
	ErrBodyTooBig = errors.New("protocol: body too large")
)

// Header is the fixed frame header.
type Header struct {
	CodecType codec.CodecType
	MsgType   MsgType
	Seq       uint32 // pairs a response with its request
	BodyLen   uint32
}

// Encode writes h and body to w as one frame; h.BodyLen is taken from body.
// Callers sharing w among goroutines must serialize calls to Encode.
func Encode(w io.Writer, h *Header, body []byte) error {
	if len(body) > MaxBodyLen {
		return ErrBodyTooBig
	}
	h.BodyLen = uint32(len(body))

	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf, Magic[:])
	buf[3] = Version
	buf[4] = byte(h.CodecType)
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
	_, err := w.Write(append(buf, body...))
	return err
}

// Decode reads one complete frame from r and validates its header.
func Decode(r io.Reader) (*Header, []byte, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return nil, nil, err
	}
	if [3]byte(hb[0:3]) != Magic {
		return nil, nil, fmt.Errorf("%w: %x", ErrBadMagic, hb[0:3])
	}
	if hb[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrBadVersion, hb[3])
	}
	h := &Header{
		CodecType: codec.CodecType(hb[4]),
		MsgType:   MsgType(hb[5]),
		Seq:       binary.BigEndian.Uint32(hb[6:10]),
		BodyLen:   binary.BigEndian.Uint32(hb[10:14]),
	}
	if !h.CodecType.Valid() {
		return nil, nil, fmt.Errorf("protocol: unsupported codec type: %d", hb[4])
	}
	if !h.MsgType.valid() {
		return nil, nil, fmt.Errorf("protocol: unsupported message type: %d", hb[5])
	}
	if h.BodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrBodyTooBig, h.BodyLen)
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	return h, body, nil
}
