package resolver

import (
	"context"
	"fmt"

	"callproxy/loadbalance"
	"callproxy/registry"

	"github.com/coreos/go-semver/semver"
)

// RegistryScheme is the locator scheme served by Registry resolvers:
// "registry://<service>[?version=X.Y.Z]".
const RegistryScheme = "registry"

// Registry resolves "registry://" locators by discovering the service's
// instances and picking one with a balancer keyed by the worker, so a
// consistent-hash balancer pins each worker to one instance.
//
// With a version in the locator, only instances of the same major version
// and at least that version are considered. Instances without a version
// are always considered.
type Registry struct {
	reg    registry.Registry
	bal    loadbalance.Balancer
	worker Worker
}

// NewRegistryGroup returns a Group of Registry resolvers sharing reg. Each
// worker gets its balancer from newBalancer.
func NewRegistryGroup(reg registry.Registry, newBalancer func() loadbalance.Balancer) (*Group, error) {
	return NewGroup(func(w Worker) (Resolver, error) {
		return NewRegistry(reg, newBalancer(), w), nil
	}, 0)
}

// NewRegistry creates a resolver for worker w.
func NewRegistry(reg registry.Registry, bal loadbalance.Balancer, w Worker) *Registry {
	return &Registry{reg: reg, bal: bal, worker: w}
}

func (r *Registry) Resolve(ctx context.Context, locator string) (string, error) {
	t, err := parseLocator(locator)
	if err != nil {
		return "", err
	}
	if t.scheme != RegistryScheme || t.host == "" {
		return "", fmt.Errorf("resolver: %q is not a registry locator", locator)
	}

	var want *semver.Version
	if v := t.query.Get("version"); v != "" {
		if want, err = semver.NewVersion(v); err != nil {
			return "", fmt.Errorf("resolver: locator %q: %w", locator, err)
		}
	}

	all, err := r.reg.Discover(ctx, t.host)
	if err != nil {
		return "", fmt.Errorf("resolver: discover %s: %w", t.host, err)
	}
	insts := compatible(all, want)
	if len(insts) == 0 {
		return "", fmt.Errorf("%w for service %s (%d registered)", ErrNoAddress, t.host, len(all))
	}
	inst, err := r.bal.Pick(insts, r.worker.WorkerID())
	if err != nil {
		return "", err
	}
	return inst.Addr, nil
}

// compatible filters insts down to those serving a version compatible with
// want. A nil want accepts everything.
func compatible(insts []registry.ServiceInstance, want *semver.Version) []registry.ServiceInstance {
	if want == nil {
		return insts
	}
	var out []registry.ServiceInstance
	for _, inst := range insts {
		if inst.Version == "" {
			out = append(out, inst)
			continue
		}
		have, err := semver.NewVersion(inst.Version)
		if err != nil {
			continue
		}
		if have.Major == want.Major && !have.LessThan(*want) {
			out = append(out, inst)
		}
	}
	return out
}
