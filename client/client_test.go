package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"callproxy/codec"
	"callproxy/endpoint"
	"callproxy/failure"
	"callproxy/invoker"
	"callproxy/method"
	"callproxy/result"
	"callproxy/transport"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const kindNotFound failure.Kind = "NotFound"

var (
	greeterEP  = endpoint.MustParse("svc://host/greet", "Greeter")
	greet      = method.New("Greeter", "Greet", method.Declares(kindNotFound))
	shout      = method.New("Greeter", "Shout")
	greetLater = method.New("Greeter", "GreetLater", method.ReturnsHandle())

	syncCodec  = codec.NewClientCodec(codec.CodecTypeJSON, false)
	asyncCodec = codec.NewClientCodec(codec.CodecTypeJSON, true)
)

// Invoker doubles.

// failing fails every call and counts how often it was reached.
type failing struct {
	μ     sync.Mutex
	calls int
}

func (f *failing) Invoke(context.Context, endpoint.Endpoint, *endpoint.Options, codec.ClientCodec, *method.Method, []any) *result.Pending {
	f.μ.Lock()
	f.calls++
	f.μ.Unlock()
	return result.Failed(errors.New("invoker reached"))
}

// echo completes each call with its first argument.
var echo = invoker.Func(func(_ context.Context, _ endpoint.Endpoint, _ *endpoint.Options, _ codec.ClientCodec, _ *method.Method, args []any) *result.Pending {
	if len(args) == 0 {
		return result.Succeeded(nil)
	}
	return result.Succeeded(args[0])
})

// failWith completes each call with err.
func failWith(err error) invoker.RemoteInvoker {
	return invoker.Func(func(context.Context, endpoint.Endpoint, *endpoint.Options, codec.ClientCodec, *method.Method, []any) *result.Pending {
		return result.Failed(err)
	})
}

// manual hands out pending cells for the test to complete.
type manual struct {
	cells chan *result.Pending
}

func newManual() *manual { return &manual{cells: make(chan *result.Pending, 16)} }

func (m *manual) Invoke(context.Context, endpoint.Endpoint, *endpoint.Options, codec.ClientCodec, *method.Method, []any) *result.Pending {
	p := result.New()
	m.cells <- p
	return p
}

func newClient(t *testing.T, inv invoker.RemoteInvoker, cc codec.ClientCodec, methods ...*method.Method) *Client {
	t.Helper()
	c, err := New(greeterEP, inv, cc, nil, methods...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestIdentityMethodsStayLocal(t *testing.T) {
	inv := new(failing)
	c := newClient(t, inv, syncCodec, greet)
	ctx := context.Background()

	s, err := c.Dispatch(ctx, method.ToString)
	if err != nil || s != "Greeter(svc://host/greet)" {
		t.Errorf("String = %q, %v", s, err)
	}
	if c.String() != "Greeter(svc://host/greet)" {
		t.Errorf("String() = %q", c.String())
	}

	h, err := c.Dispatch(ctx, method.HashCode)
	if err != nil || h != c.Hash() {
		t.Errorf("Hash = %v, %v; want %v", h, err, c.Hash())
	}
	if h2, _ := c.Dispatch(ctx, method.HashCode); h2 != h {
		t.Errorf("Hash not stable: %v then %v", h, h2)
	}

	eq, err := c.Dispatch(ctx, method.Equals, c)
	if err != nil || eq != true {
		t.Errorf("Equal(self) = %v, %v", eq, err)
	}

	if inv.calls != 0 {
		t.Errorf("identity methods reached the invoker %d times", inv.calls)
	}
}

func TestUnsupportedIdentityOperation(t *testing.T) {
	inv := new(failing)
	c := newClient(t, inv, syncCodec)
	clone := &method.Method{Name: "Clone", Category: method.Identity}
	if _, err := c.Dispatch(context.Background(), clone); !errors.Is(err, failure.ErrUnsupportedIdentityOperation) {
		t.Errorf("Clone: %v, want ErrUnsupportedIdentityOperation", err)
	}
	if inv.calls != 0 {
		t.Error("unsupported identity operation reached the invoker")
	}
}

type Greeter struct{ *Client }

func TestEqualityIsIdentity(t *testing.T) {
	c := newClient(t, echo, syncCodec, greet)
	other := newClient(t, echo, syncCodec, greet)
	ctx := context.Background()

	tests := []struct {
		name string
		args []any
		want bool
	}{
		{"self", []any{c}, true},
		{"wrapped self", []any{Greeter{c}}, true},
		{"same endpoint", []any{other}, false},
		{"wrapped other", []any{Greeter{other}}, false},
		{"endpoint value", []any{greeterEP}, false},
		{"nil", []any{nil}, false},
		{"no argument", nil, false},
		{"two arguments", []any{c, c}, false},
	}
	for _, tc := range tests {
		got, err := c.Dispatch(ctx, method.Equals, tc.args...)
		if err != nil || got != tc.want {
			t.Errorf("%s: Equal = %v, %v; want %v", tc.name, got, err, tc.want)
		}
	}
	if c.Hash() == other.Hash() {
		t.Error("distinct clients share a hash")
	}
}

func TestSyncRoundTrip(t *testing.T) {
	c := newClient(t, echo, syncCodec, greet)
	marker := &struct{ n int }{42}
	got, err := c.Dispatch(context.Background(), greet, marker)
	if err != nil {
		t.Fatal(err)
	}
	if got != marker {
		t.Errorf("got %v, want the same value back", got)
	}
}

func TestSyncBlocksUntilComplete(t *testing.T) {
	defer leaktest.Check(t)()

	inv := newManual()
	c := newClient(t, inv, syncCodec, greet)

	done := make(chan any)
	go func() {
		v, _ := c.Dispatch(context.Background(), greet, "x")
		done <- v
	}()

	p := <-inv.cells
	select {
	case <-done:
		t.Fatal("synchronous call returned before completion")
	case <-time.After(20 * time.Millisecond):
	}
	p.Succeed("hello")
	if v := <-done; v != "hello" {
		t.Errorf("got %v, want hello", v)
	}
}

func TestErrorTranslation(t *testing.T) {
	notFound := failure.New(kindNotFound, "no such user")
	conflict := failure.New("Conflict", "already greeted")
	runtime := errors.New("something broke")
	fault := failure.Fault("bad state")
	truncated := fmt.Errorf("decode Greeter.Greet reply: %w", io.ErrUnexpectedEOF)

	tests := []struct {
		name  string
		cause error
		check func(t *testing.T, err error)
	}{
		{"declared passes through", notFound, func(t *testing.T, err error) {
			if err != notFound {
				t.Errorf("got %v, want the original cause", err)
			}
		}},
		{"undeclared is wrapped", conflict, func(t *testing.T, err error) {
			var ue *failure.UndeclaredError
			if !errors.As(err, &ue) || ue.Cause != conflict {
				t.Errorf("got %v, want UndeclaredError wrapping the cause", err)
			}
		}},
		{"runtime passes through", runtime, func(t *testing.T, err error) {
			if err != runtime {
				t.Errorf("got %v", err)
			}
		}},
		{"fault passes through", fault, func(t *testing.T, err error) {
			if err != fault {
				t.Errorf("got %v", err)
			}
		}},
		{"transport teardown is session closed", &transport.ClosedError{Err: errors.New("protocol: invalid magic number")}, func(t *testing.T, err error) {
			if err != failure.ErrSessionClosed {
				t.Errorf("got %v, want ErrSessionClosed", err)
			}
		}},
		{"truncated reply passes through", truncated, func(t *testing.T, err error) {
			if err != truncated {
				t.Errorf("got %v, want the decode error", err)
			}
		}},
		{"cancellation is unchecked", context.Canceled, func(t *testing.T, err error) {
			if err != context.Canceled {
				t.Errorf("got %v", err)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, failWith(tc.cause), syncCodec, greet)
			v, err := c.Dispatch(context.Background(), greet, "bob")
			if v != nil {
				t.Errorf("value %v returned with failure", v)
			}
			tc.check(t, err)
		})
	}

	// A method declaring nothing wraps every checked cause.
	c := newClient(t, failWith(notFound), syncCodec, shout)
	var ue *failure.UndeclaredError
	if _, err := c.Dispatch(context.Background(), shout); !errors.As(err, &ue) || ue.Cause != notFound {
		t.Errorf("Shout: %v, want UndeclaredError", err)
	}
}

func TestAsyncReturnsImmediately(t *testing.T) {
	defer leaktest.Check(t)()

	never := invoker.Func(func(context.Context, endpoint.Endpoint, *endpoint.Options, codec.ClientCodec, *method.Method, []any) *result.Pending {
		return result.New()
	})
	c := newClient(t, never, asyncCodec, greetLater)
	if c.Mode() != ModeAsync {
		t.Fatalf("Mode = %v", c.Mode())
	}

	returned := make(chan any, 1)
	go func() {
		v, _ := c.Dispatch(context.Background(), greetLater, "x")
		returned <- v
	}()
	select {
	case v := <-returned:
		p, ok := v.(*result.Pending)
		if !ok {
			t.Fatalf("got %T, want *result.Pending", v)
		}
		if p.State() != result.StatePending {
			t.Errorf("State = %v, want pending", p.State())
		}
	case <-time.After(time.Second):
		t.Fatal("asynchronous call blocked")
	}
}

func TestAsyncRawFailure(t *testing.T) {
	cause := failure.New("Conflict", "already greeted")
	c := newClient(t, failWith(cause), asyncCodec, greetLater)

	p, err := Go(context.Background(), c, greetLater)
	if err != nil {
		t.Fatal(err)
	}
	// Asynchronous consumers see the untranslated cause.
	if _, err := p.Get(); err != cause {
		t.Errorf("Get = %v, want the raw cause", err)
	}
	rec := failure.Reconcile(cause, greetLater)
	if rec.Class != failure.ClassUndeclared {
		t.Errorf("Reconcile class = %v", rec.Class)
	}
}

func TestAsyncNonHandleMethod(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	opts := endpoint.NewOptions(endpoint.WithLogger(zap.New(core)))
	inv := newManual()
	c, err := New(greeterEP, inv, asyncCodec, opts, greet)
	if err != nil {
		t.Fatal(err)
	}
	if n := logs.FilterMessageSnippet("discard").Len(); n != 1 {
		t.Errorf("got %d construction warnings, want 1", n)
	}

	v, err := c.Dispatch(context.Background(), greet, "x")
	if v != nil || err != nil {
		t.Errorf("Dispatch = %v, %v; want nil, nil", v, err)
	}
	if _, err := Go(context.Background(), c, greet); !errors.Is(err, ErrNoHandle) {
		t.Errorf("Go = %v, want ErrNoHandle", err)
	}

	// The call was still issued, and a failure is logged rather than lost.
	p := <-inv.cells
	p.Fail(errors.New("lost"))
	if n := logs.FilterMessage("discarded call failed").Len(); n != 1 {
		t.Errorf("failure logged %d times", n)
	}
}

func TestConcurrentCallers(t *testing.T) {
	defer leaktest.Check(t)()

	// Complete out of order from another goroutine.
	inv := invoker.Func(func(_ context.Context, _ endpoint.Endpoint, _ *endpoint.Options, _ codec.ClientCodec, _ *method.Method, args []any) *result.Pending {
		p := result.New()
		marker := args[0].(int)
		time.AfterFunc(time.Duration(marker%7)*time.Millisecond, func() { p.Succeed(marker) })
		return p
	})
	c := newClient(t, inv, syncCodec, greet)

	const n = 64
	got := make([]any, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Dispatch(context.Background(), greet, i)
			if err != nil {
				t.Errorf("call %d: %v", i, err)
			}
			got[i] = v
		}()
	}
	wg.Wait()

	want := make([]any, n)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
}

func TestDispatchErrors(t *testing.T) {
	nilInvoker := invoker.Func(func(context.Context, endpoint.Endpoint, *endpoint.Options, codec.ClientCodec, *method.Method, []any) *result.Pending {
		return nil
	})
	c := newClient(t, nilInvoker, syncCodec, greet)
	ctx := context.Background()

	_, err := c.Dispatch(ctx, greet)
	if k, _ := failure.KindOf(err); k != failure.KindFault {
		t.Errorf("nil pending: %v, want a fault", err)
	}
	if _, err := c.Dispatch(ctx, shout); !errors.Is(err, ErrUnboundMethod) {
		t.Errorf("unbound: %v, want ErrUnboundMethod", err)
	}
	if _, err := c.Dispatch(ctx, nil); err == nil {
		t.Error("nil method dispatched")
	}
}

func TestNewRejects(t *testing.T) {
	foreign := method.New("Other", "Greet")
	tests := []struct {
		name    string
		inv     invoker.RemoteInvoker
		cc      codec.ClientCodec
		methods []*method.Method
	}{
		{"no invoker", nil, syncCodec, nil},
		{"no codec", echo, nil, nil},
		{"foreign method", echo, syncCodec, []*method.Method{foreign}},
		{"identity method", echo, syncCodec, []*method.Method{method.ToString}},
		{"nil method", echo, syncCodec, []*method.Method{nil}},
	}
	for _, tc := range tests {
		if _, err := New(greeterEP, tc.inv, tc.cc, nil, tc.methods...); err == nil {
			t.Errorf("%s: New succeeded", tc.name)
		}
	}
}

func TestCall(t *testing.T) {
	c := newClient(t, echo, syncCodec, greet)
	ctx := context.Background()

	s, err := Call[string](ctx, c, greet, "hi")
	if err != nil || s != "hi" {
		t.Errorf("Call[string] = %q, %v", s, err)
	}
	if _, err := Call[int](ctx, c, greet, "hi"); err == nil {
		t.Error("Call[int] accepted a string result")
	}
	if n, err := Call[int](ctx, c, greet); err != nil || n != 0 {
		t.Errorf("Call[int] with no result = %d, %v", n, err)
	}
}
