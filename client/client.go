// Package client implements the call dispatcher: the object a caller holds
// in place of a remote service.
//
// A Client is bound to one endpoint, one codec, one invoker and one options
// snapshot. Every method the caller may use is registered at construction
// and compiled into a dispatch table, together with the fixed identity
// methods (string form, hash, equality) that are answered locally.
//
// Typed wrappers embed *Client and forward to Call or Go:
//
//	type Greeter struct{ *client.Client }
//
//	func (g Greeter) Greet(ctx context.Context, name string) (string, error) {
//		return client.Call[string](ctx, g.Client, greet, name)
//	}
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"callproxy/codec"
	"callproxy/endpoint"
	"callproxy/failure"
	"callproxy/invoker"
	"callproxy/method"
	"callproxy/result"

	"go.uber.org/zap"
)

// Mode selects how a client delivers results.
type Mode int

const (
	// ModeSync blocks the caller until the call completes.
	ModeSync Mode = iota
	// ModeAsync hands the caller the pending result without blocking.
	ModeAsync
)

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}

var (
	// ErrUnboundMethod is reported for a method not registered with the client.
	ErrUnboundMethod = errors.New("rpc: method not bound to client")

	// ErrNoHandle is reported by Go when the call does not produce a pending
	// handle.
	ErrNoHandle = errors.New("rpc: call returns no handle")
)

// binding is the compiled handler for one method.
type binding func(ctx context.Context, args []any) (any, error)

// Client dispatches calls for one bound interface.
// It is safe for concurrent use; nothing in it changes after New returns.
type Client struct {
	ep     endpoint.Endpoint
	opts   *endpoint.Options
	cc     codec.ClientCodec
	inv    invoker.RemoteInvoker
	mode   Mode
	log    *zap.Logger
	table  map[*method.Method]binding
	closer io.Closer
}

// New binds a client to ep. Calls go through inv with codec cc and options
// opts; a nil opts uses the defaults. Only the given methods, which must
// belong to ep's interface, can be dispatched.
func New(ep endpoint.Endpoint, inv invoker.RemoteInvoker, cc codec.ClientCodec, opts *endpoint.Options, methods ...*method.Method) (*Client, error) {
	if inv == nil || cc == nil {
		return nil, errors.New("client: invoker and codec are required")
	}
	if opts == nil {
		opts = endpoint.NewOptions()
	}
	c := &Client{
		ep:    ep,
		opts:  opts,
		cc:    cc,
		inv:   inv,
		log:   opts.Logger().With(zap.Stringer("client", ep)),
		table: make(map[*method.Method]binding, len(methods)+3),
	}
	if cc.IsAsyncClient() {
		c.mode = ModeAsync
	}

	c.table[method.ToString] = func(context.Context, []any) (any, error) { return c.String(), nil }
	c.table[method.HashCode] = func(context.Context, []any) (any, error) { return c.Hash(), nil }
	c.table[method.Equals] = func(_ context.Context, args []any) (any, error) {
		return len(args) == 1 && c.Equal(args[0]), nil
	}

	for _, m := range methods {
		if m == nil || m.Category != method.Interface {
			return nil, fmt.Errorf("client: cannot bind %v as an interface method", m)
		}
		if m.Interface != ep.Interface() {
			return nil, fmt.Errorf("client: method %s does not belong to %s", m, ep.Interface())
		}
		c.table[m] = c.bind(m)
	}
	return c, nil
}

// bind compiles the handler for m according to the client's mode.
func (c *Client) bind(m *method.Method) binding {
	switch {
	case c.mode == ModeSync:
		return func(ctx context.Context, args []any) (any, error) {
			out := c.invoke(ctx, m, args).Await()
			if out.Err != nil {
				return nil, failure.Translate(out.Err, m)
			}
			return out.Value, nil
		}
	case m.ReturnsHandle:
		return func(ctx context.Context, args []any) (any, error) {
			return c.invoke(ctx, m, args), nil
		}
	default:
		// The result has nowhere to go; the caller gets nothing back.
		c.log.Warn("method does not return a handle; asynchronous calls to it discard their result",
			zap.Stringer("method", m))
		return func(ctx context.Context, args []any) (any, error) {
			c.invoke(ctx, m, args).OnComplete(func(o result.Outcome) {
				if o.Err != nil {
					c.log.Warn("discarded call failed", zap.Stringer("method", m), zap.Error(o.Err))
				}
			})
			return nil, nil
		}
	}
}

func (c *Client) invoke(ctx context.Context, m *method.Method, args []any) *result.Pending {
	p := c.inv.Invoke(ctx, c.ep, c.opts, c.cc, m, args)
	if p == nil {
		return result.Failed(failure.Fault("invoker returned no result for %s", m))
	}
	return p
}

// Dispatch calls m with args.
//
// Identity methods are answered locally. For other methods a synchronous
// client blocks until the call completes and returns its value or its
// translated failure. An asynchronous client returns the *result.Pending
// for methods that return a handle, and nil for the rest.
func (c *Client) Dispatch(ctx context.Context, m *method.Method, args ...any) (any, error) {
	if m == nil {
		return nil, failure.Fault("dispatch of nil method")
	}
	if args == nil {
		args = []any{}
	}
	b, ok := c.table[m]
	if !ok {
		if m.Category == method.Identity {
			return nil, fmt.Errorf("%w: %s", failure.ErrUnsupportedIdentityOperation, m.Name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnboundMethod, m)
	}
	return b(ctx, args)
}

// String returns "Interface(locator)".
func (c *Client) String() string { return c.ep.String() }

// Hash returns the identity hash of c.
func (c *Client) Hash() uintptr { return reflect.ValueOf(c).Pointer() }

// Equal reports whether other is this very client, possibly inside a
// wrapper that exposes it through RPCClient.
func (c *Client) Equal(other any) bool {
	switch o := other.(type) {
	case *Client:
		return o == c
	case interface{ RPCClient() *Client }:
		return o.RPCClient() == c
	}
	return false
}

// RPCClient returns c. Wrappers embedding *Client inherit it, which lets
// Equal see through them.
func (c *Client) RPCClient() *Client { return c }

func (c *Client) Endpoint() endpoint.Endpoint { return c.ep }

func (c *Client) Options() *endpoint.Options { return c.opts }

func (c *Client) Mode() Mode { return c.mode }

// Close releases the connections of a client created by Dial. It is a no-op
// for clients built with New.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Call dispatches m on c and returns the result as a T. A call that yields
// no value returns the zero T.
func Call[T any](ctx context.Context, c *Client, m *method.Method, args ...any) (T, error) {
	var zero T
	v, err := c.Dispatch(ctx, m, args...)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, failure.Fault("%s returned %T, want %T", m, v, zero)
	}
	return t, nil
}

// Go dispatches m on an asynchronous client and returns the pending handle.
func Go(ctx context.Context, c *Client, m *method.Method, args ...any) (*result.Pending, error) {
	v, err := c.Dispatch(ctx, m, args...)
	if err != nil {
		return nil, err
	}
	p, ok := v.(*result.Pending)
	if !ok {
		return nil, fmt.Errorf("%w: %s on a %s client", ErrNoHandle, m, c.mode)
	}
	return p, nil
}
