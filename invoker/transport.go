package invoker

import (
	"context"
	"fmt"
	"sync/atomic"

	"callproxy/codec"
	"callproxy/endpoint"
	"callproxy/message"
	"callproxy/method"
	"callproxy/resolver"
	"callproxy/result"
	"callproxy/transport"

	"go.uber.org/zap"
)

// DefaultWorkers is the number of worker lanes used when TransportConfig
// leaves Workers unset.
const DefaultWorkers = 4

// TransportConfig configures a Transport invoker.
type TransportConfig struct {
	Resolver resolver.AddressResolver // required
	Dialer   transport.Dialer         // nil uses a zero net.Dialer
	PoolSize int                      // connections per address; default 1
	Workers  int                      // resolution lanes; default DefaultWorkers
	Logger   *zap.Logger
}

// Transport is a RemoteInvoker that sends calls over pooled multiplexed
// connections. Calls are spread round-robin across a fixed set of worker
// lanes and each lane resolves locators through its own resolver.
type Transport struct {
	resolver resolver.AddressResolver
	pool     *transport.Pool
	workers  []resolver.WorkerID
	next     atomic.Uint32
	log      *zap.Logger
}

// NewTransport creates a transport invoker from cfg.
func NewTransport(cfg TransportConfig) *Transport {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	n := cfg.Workers
	if n < 1 {
		n = DefaultWorkers
	}
	workers := make([]resolver.WorkerID, n)
	for i := range workers {
		workers[i] = resolver.WorkerID(fmt.Sprintf("worker-%d", i))
	}
	return &Transport{
		resolver: cfg.Resolver,
		pool:     transport.NewPool(cfg.PoolSize, cfg.Dialer, log),
		workers:  workers,
		log:      log,
	}
}

// Invoke implements RemoteInvoker. Resolution, dialing and sending happen
// off the caller's goroutine. Cancelling ctx fails the call.
func (t *Transport) Invoke(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
	cc codec.ClientCodec, m *method.Method, args []any) *result.Pending {
	p := result.New()
	if err := ctx.Err(); err != nil {
		p.Fail(err)
		return p
	}
	stop := context.AfterFunc(ctx, func() { p.Fail(context.Cause(ctx)) })
	w := t.worker()
	go func() {
		raw, err := t.send(ctx, ep, cc, m, args, w)
		if err != nil {
			stop()
			p.Fail(err)
			return
		}
		raw.OnComplete(func(o result.Outcome) {
			stop()
			if o.Err != nil {
				p.Fail(o.Err)
				return
			}
			v, err := cc.DecodeResponse(m, o.Value.(*message.RPCMessage))
			p.Complete(result.Outcome{Value: v, Err: err})
		})
	}()
	return p
}

func (t *Transport) send(ctx context.Context, ep endpoint.Endpoint, cc codec.ClientCodec,
	m *method.Method, args []any, w resolver.Worker) (*result.Pending, error) {
	req, err := cc.EncodeRequest(m, args)
	if err != nil {
		return nil, err
	}
	addr, err := t.resolver.Resolve(ctx, ep.Locator(), w)
	if err != nil {
		return nil, err
	}
	ct, err := t.pool.Get(ctx, addr, cc.Type())
	if err != nil {
		return nil, err
	}
	t.log.Debug("sending call", zap.Stringer("method", m), zap.String("addr", addr), zap.String("worker", w.WorkerID()))
	return ct.Send(req)
}

func (t *Transport) worker() resolver.WorkerID {
	return t.workers[(t.next.Add(1)-1)%uint32(len(t.workers))]
}

// Close closes every pooled connection. Calls in flight fail with a closed
// session.
func (t *Transport) Close() error { return t.pool.Close() }
