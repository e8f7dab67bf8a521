package resolver

import (
	"context"
	"fmt"
	"maps"
	"net"
)

// Static resolves locators from a fixed table, falling back to the
// host:port written in the locator itself. It keeps no per-worker state, so
// a Group over it is only needed to satisfy AddressResolver.
type Static map[string]string

// NewStaticGroup returns a Group in which every worker shares a copy of table.
func NewStaticGroup(table map[string]string) (*Group, error) {
	s := Static(maps.Clone(table))
	return NewGroup(func(Worker) (Resolver, error) { return s, nil }, 0)
}

func (s Static) Resolve(_ context.Context, locator string) (string, error) {
	if addr, ok := s[locator]; ok {
		return addr, nil
	}
	t, err := parseLocator(locator)
	if err != nil {
		return "", err
	}
	if t.host == "" || t.port == "" {
		return "", fmt.Errorf("%w for %q", ErrNoAddress, locator)
	}
	return net.JoinHostPort(t.host, t.port), nil
}
