// Package message defines the envelope exchanged between a client and a server.
//
// The envelope is encoded by the codec layer and framed by the protocol layer.
package message

// RPCMessage carries one request or response.
//
//   - Request: ServiceMethod and Payload (encoded arguments) are set.
//   - Response: Payload holds the encoded reply. On failure Error holds the
//     message and ErrorKind the failure kind, if the handler reported one.
type RPCMessage struct {
	ServiceMethod string `json:"service_method" msgpack:"m"` // "Interface.Method", e.g. "Arith.Add"
	Error         string `json:"error,omitempty" msgpack:"e,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty" msgpack:"k,omitempty"`
	Payload       []byte `json:"payload,omitempty" msgpack:"p,omitempty"`
}

// Failed reports whether m is a failed response.
func (m *RPCMessage) Failed() bool { return m.Error != "" || m.ErrorKind != "" }
