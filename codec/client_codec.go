package codec

import (
	"fmt"
	"reflect"

	"callproxy/failure"
	"callproxy/message"
	"callproxy/method"
)

// ClientCodec turns a method invocation into a wire request and a wire
// response back into a result value or failure.
type ClientCodec interface {
	// EncodeRequest builds the request envelope for calling m with args.
	EncodeRequest(m *method.Method, args []any) (*message.RPCMessage, error)

	// DecodeResponse extracts the result of m from resp. A failed response
	// is reported as an error carrying the remote failure kind.
	DecodeResponse(m *method.Method, resp *message.RPCMessage) (any, error)

	// IsAsyncClient reports whether clients using this codec hand out
	// pending handles instead of blocking.
	IsAsyncClient() bool

	// Type reports the envelope codec used on the wire.
	Type() CodecType
}

// RPCClientCodec is the ClientCodec for the frame protocol of package
// protocol. Arguments and replies are encoded with PayloadCodec(Type()).
type RPCClientCodec struct {
	ct    CodecType
	async bool
}

// NewClientCodec returns a codec for envelopes of type ct. If async is true,
// clients using it are asynchronous.
func NewClientCodec(ct CodecType, async bool) *RPCClientCodec {
	return &RPCClientCodec{ct: ct, async: async}
}

func (c *RPCClientCodec) IsAsyncClient() bool { return c.async }

func (c *RPCClientCodec) Type() CodecType { return c.ct }

// EncodeRequest encodes a single argument as itself, no arguments as an
// empty object, and several arguments as a sequence.
func (c *RPCClientCodec) EncodeRequest(m *method.Method, args []any) (*message.RPCMessage, error) {
	var v any
	switch len(args) {
	case 0:
		v = struct{}{}
	case 1:
		v = args[0]
	default:
		v = args
	}
	payload, err := PayloadCodec(c.ct).Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", m, err)
	}
	return &message.RPCMessage{ServiceMethod: m.ServiceMethod(), Payload: payload}, nil
}

func (c *RPCClientCodec) DecodeResponse(m *method.Method, resp *message.RPCMessage) (any, error) {
	if resp.Failed() {
		kind := failure.Kind(resp.ErrorKind)
		if kind == "" {
			kind = failure.KindRuntime
		}
		return nil, &failure.Failure{Kind: kind, Message: resp.Error}
	}
	pc := PayloadCodec(c.ct)
	if m.NewReply == nil {
		if len(resp.Payload) == 0 {
			return nil, nil
		}
		var v any
		if err := pc.Decode(resp.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode %s reply: %w", m, err)
		}
		return v, nil
	}
	reply := m.NewReply()
	if len(resp.Payload) != 0 {
		if err := pc.Decode(resp.Payload, reply); err != nil {
			return nil, fmt.Errorf("decode %s reply: %w", m, err)
		}
	}
	return reflect.ValueOf(reply).Elem().Interface(), nil
}
