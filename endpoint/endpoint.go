// Package endpoint holds the immutable values bound to a client instance: the
// target Endpoint and the resolved ClientOptions snapshot.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/coreos/go-semver/semver"
)

// Endpoint identifies the logical target of a client: an opaque locator and
// the simple name of the bound interface. A locator may name the interface
// version it expects with a "version" query parameter, as in
// "registry://Arith?version=1.2.0".
type Endpoint struct {
	locator   string
	iface     string
	version   semver.Version
	versioned bool
}

// Parse checks that locator is a well-formed URI or host:port pair and binds
// it to the interface named iface.
func Parse(locator, iface string) (Endpoint, error) {
	if locator == "" {
		return Endpoint{}, errors.New("endpoint: empty locator")
	}
	if iface == "" {
		return Endpoint{}, errors.New("endpoint: empty interface name")
	}
	ep := Endpoint{locator: locator, iface: iface}
	if !strings.Contains(locator, "://") {
		if _, _, err := net.SplitHostPort(locator); err != nil {
			return Endpoint{}, fmt.Errorf("endpoint: invalid locator: %w", err)
		}
		return ep, nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: invalid locator: %w", err)
	}
	if v := u.Query().Get("version"); v != "" {
		sv, err := semver.NewVersion(v)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint: invalid version: %w", err)
		}
		ep.version, ep.versioned = *sv, true
	}
	return ep, nil
}

// MustParse is like Parse but panics on error.
func MustParse(locator, iface string) Endpoint {
	ep, err := Parse(locator, iface)
	if err != nil {
		panic(err)
	}
	return ep
}

// Locator returns the target locator exactly as given.
func (ep Endpoint) Locator() string { return ep.locator }

// Interface returns the simple name of the bound interface.
func (ep Endpoint) Interface() string { return ep.iface }

// Version reports the bound interface version, if any.
func (ep Endpoint) Version() (semver.Version, bool) { return ep.version, ep.versioned }

// String returns "Interface(locator)".
func (ep Endpoint) String() string { return ep.iface + "(" + ep.locator + ")" }
