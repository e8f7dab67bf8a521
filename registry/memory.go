package registry

import (
	"context"
	"slices"
	"sync"
)

// Memory is a Registry held in process memory. Leases are not enforced.
// It is meant for tests and single-process setups.
type Memory struct {
	μ         sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewMemory() *Memory {
	return &Memory{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

func (m *Memory) Register(_ context.Context, serviceName string, inst ServiceInstance, ttl int64) error {
	m.μ.Lock()
	defer m.μ.Unlock()
	insts := slices.DeleteFunc(m.instances[serviceName], func(o ServiceInstance) bool { return o.Addr == inst.Addr })
	m.instances[serviceName] = append(insts, inst)
	m.notifyLocked(serviceName)
	return nil
}

func (m *Memory) Deregister(_ context.Context, serviceName string, addr string) error {
	m.μ.Lock()
	defer m.μ.Unlock()
	m.instances[serviceName] = slices.DeleteFunc(m.instances[serviceName], func(o ServiceInstance) bool { return o.Addr == addr })
	m.notifyLocked(serviceName)
	return nil
}

func (m *Memory) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	m.μ.Lock()
	defer m.μ.Unlock()
	return slices.Clone(m.instances[serviceName]), nil
}

func (m *Memory) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	m.μ.Lock()
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	m.μ.Unlock()

	go func() {
		<-ctx.Done()
		m.μ.Lock()
		defer m.μ.Unlock()
		m.watchers[serviceName] = slices.DeleteFunc(m.watchers[serviceName], func(c chan []ServiceInstance) bool { return c == ch })
		close(ch)
	}()
	return ch
}

// notifyLocked sends the current list to each watcher, replacing an update
// the watcher has not consumed yet.
func (m *Memory) notifyLocked(serviceName string) {
	for _, ch := range m.watchers[serviceName] {
		insts := slices.Clone(m.instances[serviceName])
		select {
		case <-ch:
		default:
		}
		ch <- insts
	}
}
