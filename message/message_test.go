package message

import "testing"

func TestFailed(t *testing.T) {
	tests := []struct {
		msg  RPCMessage
		want bool
	}{
		{RPCMessage{ServiceMethod: "Arith.Add", Payload: []byte(`{"Result":3}`)}, false},
		{RPCMessage{Error: "division by zero"}, true},
		{RPCMessage{ErrorKind: "NotFound"}, true},
	}
	for _, tc := range tests {
		if got := tc.msg.Failed(); got != tc.want {
			t.Errorf("%+v: Failed = %v, want %v", tc.msg, got, tc.want)
		}
	}
}
