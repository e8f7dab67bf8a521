package loadbalance

import (
	"hash/crc32"
	"slices"
	"strconv"
	"strings"
	"sync"

	"callproxy/registry"
)

// DefaultReplicas is the number of virtual nodes per instance.
const DefaultReplicas = 100

// ConsistentHashBalancer maps each key to an instance on a hash ring, so a
// key keeps its instance while the instance set is unchanged, and only keys
// near a changed instance move when it changes.
//
// Each instance is placed at replicas virtual points, hashed from
// "{addr}#{i}", to spread load evenly.
type ConsistentHashBalancer struct {
	replicas int

	μ     sync.Mutex
	ident string   // instance set the ring was built for
	ring  []uint32 // sorted
	nodes map[uint32]string
}

func NewConsistentHashBalancer(replicas int) *ConsistentHashBalancer {
	if replicas < 1 {
		replicas = DefaultReplicas
	}
	return &ConsistentHashBalancer{replicas: replicas}
}

// Pick returns the first instance clockwise from the hash of key.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	addr := b.lookup(instances, crc32.ChecksumIEEE([]byte(key)))
	for i := range instances {
		if instances[i].Addr == addr {
			return &instances[i], nil
		}
	}
	return &instances[0], nil // unreachable
}

func (b *ConsistentHashBalancer) lookup(instances []registry.ServiceInstance, h uint32) string {
	b.μ.Lock()
	defer b.μ.Unlock()
	b.rebuild(instances)

	i, _ := slices.BinarySearch(b.ring, h)
	if i == len(b.ring) {
		i = 0 // wrap around
	}
	return b.nodes[b.ring[i]]
}

// rebuild recomputes the ring when the instance set differs from the last one.
func (b *ConsistentHashBalancer) rebuild(instances []registry.ServiceInstance) {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	ident := strings.Join(addrs, ",")
	if ident == b.ident && b.ring != nil {
		return
	}

	b.ident = ident
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]string, len(addrs)*b.replicas)
	for _, addr := range addrs {
		for i := range b.replicas {
			h := crc32.ChecksumIEEE([]byte(addr + "#" + strconv.Itoa(i)))
			b.ring = append(b.ring, h)
			b.nodes[h] = addr
		}
	}
	slices.Sort(b.ring)
}

func (b *ConsistentHashBalancer) Name() string { return "consistent-hash" }
