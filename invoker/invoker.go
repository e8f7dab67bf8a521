// Package invoker defines RemoteInvoker, the transport abstraction that
// performs a remote call, together with decorators that add timeouts,
// retries, rate limiting and logging to any invoker.
package invoker

import (
	"context"

	"callproxy/codec"
	"callproxy/endpoint"
	"callproxy/method"
	"callproxy/result"
)

// RemoteInvoker issues a call of m with args to ep and returns its pending
// result.
//
// Implementations must complete the returned cell exactly once, with a value
// or a failure, including on cancellation, timeout, and transport faults. A
// cell that is never completed blocks a synchronous caller forever.
// Invoke itself should not block on the network.
type RemoteInvoker interface {
	Invoke(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
		cc codec.ClientCodec, m *method.Method, args []any) *result.Pending
}

// Func adapts a function to RemoteInvoker.
type Func func(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
	cc codec.ClientCodec, m *method.Method, args []any) *result.Pending

func (f Func) Invoke(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
	cc codec.ClientCodec, m *method.Method, args []any) *result.Pending {
	return f(ctx, ep, opts, cc, m, args)
}

// A Decorator wraps an invoker with additional behavior.
type Decorator func(RemoteInvoker) RemoteInvoker

// Chain wraps inv so that the first decorator listed runs outermost:
// Chain(inv, A, B) behaves as A(B(inv)).
func Chain(inv RemoteInvoker, decorators ...Decorator) RemoteInvoker {
	for i := len(decorators) - 1; i >= 0; i-- {
		inv = decorators[i](inv)
	}
	return inv
}

// WithOptions applies the standard decorators configured by opts: an
// overall timeout, retries of closed sessions, per-attempt rate limiting,
// and per-attempt logging.
func WithOptions(inv RemoteInvoker, opts *endpoint.Options) RemoteInvoker {
	return Chain(inv, Timeout, Retry, RateLimit(opts), Logging(opts.Logger()))
}
