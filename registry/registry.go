// Package registry announces and discovers service instances.
package registry

import "context"

// DefaultTTL is the lease, in seconds, servers register with.
const DefaultTTL = 10

// ServiceInstance is one announced address of a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight,omitempty"`  // relative share for weighted balancing
	Version string `json:"version,omitempty"` // semantic version of the served interface
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch reports the full instance list after every change until ctx ends.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
