package resolver

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DNSConfig configures the DNS resolvers created by NewDNSGroup.
type DNSConfig struct {
	// Servers lists "host:port" name servers, queried in rotation. When
	// empty, the system configuration is used.
	Servers []string

	// LocalAddr is the local address queries are sent from; nil means any.
	LocalAddr net.IP

	// DefaultPort is used for locators without a port.
	DefaultPort string

	// TTL is how long an answer is reused. Zero disables caching.
	TTL time.Duration

	// CacheSize bounds the number of cached answers per worker.
	CacheSize int
}

// DNS resolves locator hosts with DNS, caching answers for cfg.TTL.
type DNS struct {
	r     *net.Resolver
	cfg   DNSConfig
	cache *lru.Cache // host → dnsAnswer
	now   func() time.Time
	next  atomic.Uint32 // next name server
}

type dnsAnswer struct {
	addr    string
	expires time.Time
}

// NewDNSGroup returns a Group that gives each worker its own DNS resolver.
func NewDNSGroup(cfg DNSConfig) (*Group, error) {
	return NewGroup(func(Worker) (Resolver, error) { return NewDNS(cfg) }, 0)
}

// NewDNS creates a DNS resolver.
func NewDNS(cfg DNSConfig) (*DNS, error) {
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 128
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	d := &DNS{r: net.DefaultResolver, cfg: cfg, cache: cache, now: time.Now}
	if len(cfg.Servers) != 0 || cfg.LocalAddr != nil {
		d.r = &net.Resolver{PreferGo: true, Dial: d.dial()}
	}
	return d, nil
}

// dial returns a Dial function that sends queries from the configured local
// address to the configured servers in rotation.
func (d *DNS) dial() func(ctx context.Context, network, address string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		var dialer net.Dialer
		if ip := d.cfg.LocalAddr; ip != nil {
			switch network {
			case "tcp", "tcp4", "tcp6":
				dialer.LocalAddr = &net.TCPAddr{IP: ip}
			default:
				dialer.LocalAddr = &net.UDPAddr{IP: ip}
			}
		}
		if n := len(d.cfg.Servers); n != 0 {
			address = d.cfg.Servers[(d.next.Add(1)-1)%uint32(n)]
		}
		return dialer.DialContext(ctx, network, address)
	}
}

// Resolve returns "ip:port" for the host named by locator. Literal IPs are
// returned without a lookup.
func (d *DNS) Resolve(ctx context.Context, locator string) (string, error) {
	t, err := parseLocator(locator)
	if err != nil {
		return "", err
	}
	port := t.port
	if port == "" {
		port = d.cfg.DefaultPort
	}
	if port == "" {
		return "", fmt.Errorf("resolver: locator %q has no port", locator)
	}
	if net.ParseIP(t.host) != nil {
		return net.JoinHostPort(t.host, port), nil
	}

	if v, ok := d.cache.Get(t.host); ok {
		if ans := v.(dnsAnswer); d.now().Before(ans.expires) {
			return net.JoinHostPort(ans.addr, port), nil
		}
		d.cache.Remove(t.host)
	}
	addrs, err := d.r.LookupHost(ctx, t.host)
	if err != nil {
		return "", fmt.Errorf("resolver: lookup %s: %w", t.host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoAddress, t.host)
	}
	if d.cfg.TTL > 0 {
		d.cache.Add(t.host, dnsAnswer{addr: addrs[0], expires: d.now().Add(d.cfg.TTL)})
	}
	return net.JoinHostPort(addrs[0], port), nil
}
