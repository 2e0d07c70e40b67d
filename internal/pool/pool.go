package pool

import (
	"sync"

	"github.com/angeloszaimis/instance-balancer/internal/instance"
)

type Pool struct {
	mutex     sync.RWMutex
	instances []instance.Instance
}

// New creates a pool seeded with the given instances in order.
func New(seed ...instance.Instance) *Pool {
	p := &Pool{
		instances: make([]instance.Instance, 0, len(seed)),
	}
	p.instances = append(p.instances, seed...)
	return p
}

// Add appends a new healthy instance. Reachability is left to the health checker.
func (p *Pool) Add(address string, port int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.instances = append(p.instances, instance.New(address, port))
}

// Remove deletes the instance at index. An out of range index leaves the
// pool untouched and reports false.
func (p *Pool) Remove(index int) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if index < 0 || index >= len(p.instances) {
		return false
	}

	p.instances = append(p.instances[:index], p.instances[index+1:]...)
	return true
}

// Snapshot returns a point-in-time copy of the pool in sequence order.
func (p *Pool) Snapshot() []instance.Instance {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	snapshot := make([]instance.Instance, len(p.instances))
	copy(snapshot, p.instances)
	return snapshot
}

// Healthy returns the healthy subset of the pool, preserving order.
func (p *Pool) Healthy() []instance.Instance {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	healthy := make([]instance.Instance, 0, len(p.instances))
	for _, inst := range p.instances {
		if inst.Healthy {
			healthy = append(healthy, inst)
		}
	}
	return healthy
}

// SetHealth updates the health flag of every instance registered under
// address and port. Instances removed since the probe was sent are
// silently skipped. Returns true if any flag actually changed.
func (p *Pool) SetHealth(address string, port int, healthy bool) (changed bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for i := range p.instances {
		if !p.instances[i].Is(address, port) {
			continue
		}
		if p.instances[i].Healthy != healthy {
			p.instances[i].Healthy = healthy
			changed = true
		}
	}
	return changed
}

func (p *Pool) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.instances)
}
