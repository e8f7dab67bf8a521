package client

import (
	"callproxy/codec"
	"callproxy/endpoint"
	"callproxy/invoker"
	"callproxy/method"
	"callproxy/resolver"
	"callproxy/transport"
)

// Config describes a client over the frame protocol.
type Config struct {
	Locator   string
	Interface string
	Methods   []*method.Method

	// Resolver turns the locator into an address. Nil resolves locators
	// that carry their own host and port.
	Resolver resolver.AddressResolver

	// Async makes the client hand out pending results.
	Async bool

	Options  []endpoint.Option
	PoolSize int
	Workers  int
	Dialer   transport.Dialer
}

// Dial builds a client from cfg with a transport invoker decorated by the
// options' timeout, retry, rate limit and logging. Connections are opened on
// first use and released by Close.
func Dial(cfg Config) (*Client, error) {
	ep, err := endpoint.Parse(cfg.Locator, cfg.Interface)
	if err != nil {
		return nil, err
	}
	opts := endpoint.NewOptions(cfg.Options...)
	ct, err := codec.ParseType(opts.Codec())
	if err != nil {
		return nil, err
	}
	res := cfg.Resolver
	if res == nil {
		if res, err = resolver.NewStaticGroup(nil); err != nil {
			return nil, err
		}
	}

	tr := invoker.NewTransport(invoker.TransportConfig{
		Resolver: res,
		Dialer:   cfg.Dialer,
		PoolSize: cfg.PoolSize,
		Workers:  cfg.Workers,
		Logger:   opts.Logger(),
	})
	c, err := New(ep, invoker.WithOptions(tr, opts), codec.NewClientCodec(ct, cfg.Async), opts, cfg.Methods...)
	if err != nil {
		tr.Close()
		return nil, err
	}
	c.closer = tr
	return c, nil
}
