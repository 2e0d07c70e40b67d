package loadbalancer

import (
	"errors"

	"github.com/angeloszaimis/instance-balancer/internal/instance"
	"github.com/angeloszaimis/instance-balancer/internal/pool"
	"github.com/angeloszaimis/instance-balancer/internal/strategy"
)

// ErrPoolEmpty is returned when no instance is registered or none is currently healthy.
var ErrPoolEmpty = errors.New("no healthy instances available")

// LoadBalancer selects the next instance out of the healthy part of a pool.
type LoadBalancer struct {
	pool     *pool.Pool
	strategy strategy.Strategy
}

func NewLoadBalancer(p *pool.Pool, strategy strategy.Strategy) *LoadBalancer {
	return &LoadBalancer{
		pool:     p,
		strategy: strategy,
	}
}

// Select filters the pool down to healthy instances and lets the strategy
// pick one. Health is only consulted here; the chosen instance may go down
// before the request reaches it.
func (lb *LoadBalancer) Select() (instance.Instance, error) {
	healthy := lb.pool.Healthy()
	if len(healthy) == 0 {
		return instance.Instance{}, ErrPoolEmpty
	}

	chosen, ok := lb.strategy.SelectInstance(healthy)
	if !ok {
		return instance.Instance{}, ErrPoolEmpty
	}

	return chosen, nil
}

func (lb *LoadBalancer) Pool() *pool.Pool {
	return lb.pool
}

func (lb *LoadBalancer) LoadBalancerStrategy() strategy.Strategy {
	return lb.strategy
}
