// Package resolver turns endpoint locators into network addresses.
//
// Resolution happens on behalf of a Worker, the execution context that will
// use the address. A Group keeps one Resolver per worker, created on first
// use, so per-worker state such as answer caches is never shared.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

var (
	// ErrNoWorker is reported when resolution is requested without a worker.
	ErrNoWorker = errors.New("resolver: no worker context")

	// ErrNoAddress is reported when a locator resolves to nothing.
	ErrNoAddress = errors.New("resolver: no address")
)

// A Worker identifies the execution context a resolution is made for.
type Worker interface {
	WorkerID() string
}

// WorkerID is a Worker named by a string.
type WorkerID string

func (w WorkerID) WorkerID() string { return string(w) }

// AddressResolver resolves a locator to a "host:port" address for worker w.
// Implementations fail with ErrNoWorker if w is nil.
type AddressResolver interface {
	Resolve(ctx context.Context, locator string, w Worker) (string, error)
}

// A Resolver resolves locators for a single worker.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, locator string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, locator string) (string, error) {
	return f(ctx, locator)
}

// NewResolverFunc creates the Resolver for a worker.
type NewResolverFunc func(w Worker) (Resolver, error)

// DefaultGroupSize bounds the number of per-worker resolvers a Group keeps.
const DefaultGroupSize = 256

// Group is an AddressResolver that delegates to one Resolver per worker.
// Resolvers are created lazily by newResolver and kept in an LRU cache.
type Group struct {
	newResolver NewResolverFunc

	μ     sync.Mutex // serializes creation
	cache *lru.Cache
}

// NewGroup creates a group keeping at most size resolvers.
func NewGroup(newResolver NewResolverFunc, size int) (*Group, error) {
	if size < 1 {
		size = DefaultGroupSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Group{newResolver: newResolver, cache: cache}, nil
}

// Resolve implements AddressResolver.
func (g *Group) Resolve(ctx context.Context, locator string, w Worker) (string, error) {
	if w == nil {
		return "", ErrNoWorker
	}
	r, err := g.resolverFor(w)
	if err != nil {
		return "", err
	}
	return r.Resolve(ctx, locator)
}

// Len reports the number of cached per-worker resolvers.
func (g *Group) Len() int { return g.cache.Len() }

func (g *Group) resolverFor(w Worker) (Resolver, error) {
	id := w.WorkerID()
	if r, ok := g.cache.Get(id); ok {
		return r.(Resolver), nil
	}
	g.μ.Lock()
	defer g.μ.Unlock()
	if r, ok := g.cache.Get(id); ok {
		return r.(Resolver), nil
	}
	r, err := g.newResolver(w)
	if err != nil {
		return nil, fmt.Errorf("resolver for worker %q: %w", id, err)
	}
	g.cache.Add(id, r)
	return r, nil
}

// A target is a parsed locator.
type target struct {
	scheme string // empty for a bare host:port
	host   string
	port   string
	query  url.Values
}

// parseLocator accepts "host:port" and "scheme://host[:port][/path][?query]".
func parseLocator(locator string) (target, error) {
	if !strings.Contains(locator, "://") {
		host, port, err := net.SplitHostPort(locator)
		if err != nil {
			return target{}, fmt.Errorf("resolver: invalid locator %q: %w", locator, err)
		}
		return target{host: host, port: port}, nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		return target{}, fmt.Errorf("resolver: invalid locator %q: %w", locator, err)
	}
	return target{scheme: u.Scheme, host: u.Hostname(), port: u.Port(), query: u.Query()}, nil
}
