package middleware

import (
	"context"
	"testing"
	"time"

	"callproxy/failure"
	"callproxy/message"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func echoHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Payload: []byte("ok")}
}

func slowHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	return echoHandler(ctx, req)
}

func failingHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	return &message.RPCMessage{Error: "nope", ErrorKind: "Denied"}
}

func panicHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	panic("kaboom")
}

var req = &message.RPCMessage{ServiceMethod: "Arith.Add"}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	if resp := Logging(log)(echoHandler)(context.Background(), req); string(resp.Payload) != "ok" {
		t.Fatalf("payload = %q, want ok", resp.Payload)
	}
	Logging(log)(failingHandler)(context.Background(), req)

	if n := logs.FilterMessage("request served").Len(); n != 1 {
		t.Errorf("got %d served entries, want 1", n)
	}
	warn := logs.FilterMessage("request failed").All()
	if len(warn) != 1 {
		t.Fatalf("got %d failure entries, want 1", len(warn))
	}
	if got := warn[0].ContextMap()["kind"]; got != "Denied" {
		t.Errorf("kind field = %v, want Denied", got)
	}
}

func TestTimeout(t *testing.T) {
	if resp := Timeout(500*time.Millisecond)(echoHandler)(context.Background(), req); resp.Failed() {
		t.Fatalf("fast handler failed: %+v", resp)
	}
	resp := Timeout(50*time.Millisecond)(slowHandler)(context.Background(), req)
	if resp.Error != "request timed out" || resp.ErrorKind != string(failure.KindRuntime) {
		t.Fatalf("slow handler: %+v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	// rate 1/s, burst 2: the first two pass, the third is rejected.
	h := RateLimit(1, 2)(echoHandler)
	for i := range 2 {
		if resp := h(context.Background(), req); resp.Failed() {
			t.Fatalf("request %d rejected: %+v", i, resp)
		}
	}
	resp := h(context.Background(), req)
	if resp.ErrorKind != string(KindRateLimited) {
		t.Fatalf("request 3: %+v, want rate limited", resp)
	}
}

func TestRecover(t *testing.T) {
	resp := Recover(zap.NewNop())(panicHandler)(context.Background(), req)
	if resp.ErrorKind != string(failure.KindFault) || resp.Error != "panic: kaboom" {
		t.Fatalf("recovered response: %+v", resp)
	}
}

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, r *message.RPCMessage) *message.RPCMessage {
				order = append(order, name)
				return next(ctx, r)
			}
		}
	}
	h := Chain(tag("a"), tag("b"), Timeout(time.Second))(echoHandler)
	if resp := h(context.Background(), req); resp.Failed() {
		t.Fatalf("chained handler failed: %+v", resp)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}
