package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"callproxy/codec"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// A Dialer opens stream connections; *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Pool keeps a fixed number of multiplexed transports per address and codec
// and hands them out round-robin. Broken transports are replaced on the next
// Get that selects them.
type Pool struct {
	size   int
	dialer Dialer
	log    *zap.Logger

	μ      sync.Mutex
	addrs  map[poolKey]*addrPool
	closed bool
}

type poolKey struct {
	addr string
	ct   codec.CodecType
}

type addrPool struct {
	μ      sync.Mutex
	ts     []*ClientTransport
	next   int
	closed bool // set by Pool.Close; no more dials
}

// NewPool creates an empty pool of size transports per address. A nil dialer
// uses a zero net.Dialer.
func NewPool(size int, dialer Dialer, log *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if dialer == nil {
		dialer = new(net.Dialer)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{size: size, dialer: dialer, log: log, addrs: make(map[poolKey]*addrPool)}
}

// Get returns a live transport to addr using envelope codec ct, dialing the
// address on first use.
func (p *Pool) Get(ctx context.Context, addr string, ct codec.CodecType) (*ClientTransport, error) {
	key := poolKey{addr: addr, ct: ct}
	ap, err := p.addrPool(key)
	if err != nil {
		return nil, err
	}
	return p.get(ctx, ap, key)
}

func (p *Pool) addrPool(key poolKey) (*addrPool, error) {
	p.μ.Lock()
	defer p.μ.Unlock()
	if p.closed {
		return nil, net.ErrClosed
	}
	ap, ok := p.addrs[key]
	if !ok {
		ap = new(addrPool)
		p.addrs[key] = ap
	}
	return ap, nil
}

// get picks a transport from ap. Close may have run since ap was looked up.
func (p *Pool) get(ctx context.Context, ap *addrPool, key poolKey) (*ClientTransport, error) {
	addr := key.addr
	ap.μ.Lock()
	defer ap.μ.Unlock()
	if ap.closed {
		return nil, net.ErrClosed
	}
	if len(ap.ts) == 0 {
		ts, err := p.dialAll(ctx, key)
		if err != nil {
			return nil, err
		}
		ap.ts = ts
	}

	i := ap.next % len(ap.ts)
	ap.next++
	t := ap.ts[i]
	if t.Err() != nil {
		p.log.Debug("replacing broken transport", zap.String("addr", addr), zap.Error(t.Err()))
		t.Close()
		fresh, err := p.dial(ctx, key)
		if err != nil {
			return nil, err
		}
		ap.ts[i] = fresh
		t = fresh
	}
	return t, nil
}

// Close closes every transport in the pool. Later calls to Get fail.
func (p *Pool) Close() error {
	p.μ.Lock()
	p.closed = true
	addrs := p.addrs
	p.addrs = nil
	p.μ.Unlock()

	var errs []error
	for _, ap := range addrs {
		ap.μ.Lock()
		for _, t := range ap.ts {
			errs = append(errs, t.Close())
		}
		ap.ts = nil
		ap.closed = true
		ap.μ.Unlock()
	}
	return errors.Join(errs...)
}

// dialAll opens p.size transports to key concurrently.
func (p *Pool) dialAll(ctx context.Context, key poolKey) ([]*ClientTransport, error) {
	ts := make([]*ClientTransport, p.size)
	g, gctx := errgroup.WithContext(ctx)
	for i := range ts {
		g.Go(func() error {
			t, err := p.dial(gctx, key)
			ts[i] = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range ts {
			if t != nil {
				t.Close()
			}
		}
		return nil, err
	}
	return ts, nil
}

func (p *Pool) dial(ctx context.Context, key poolKey) (*ClientTransport, error) {
	conn, err := p.dialer.DialContext(ctx, "tcp", key.addr)
	if err != nil {
		return nil, err
	}
	return NewClientTransport(conn, key.ct, p.log), nil
}
