// Package loadbalance selects one instance of a service for a call.
//
//   - RoundRobinBalancer:     equal-capacity, stateless instances
//   - WeightedRandomBalancer: instances of different capacity
//   - ConsistentHashBalancer: affinity of a key (e.g. a worker) to an instance
package loadbalance

import (
	"errors"

	"callproxy/registry"
)

// ErrNoInstances is reported when there is nothing to pick from.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer picks one of instances. Key identifies the caller for balancers
// that keep affinity; others ignore it. Implementations must be safe for
// concurrent use.
type Balancer interface {
	Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer called name: "round-robin", "weighted-random" or
// "consistent-hash". It returns nil for other names.
func New(name string) Balancer {
	switch name {
	case "round-robin":
		return new(RoundRobinBalancer)
	case "weighted-random":
		return new(WeightedRandomBalancer)
	case "consistent-hash":
		return NewConsistentHashBalancer(DefaultReplicas)
	}
	return nil
}
