// Package loadbalancer composes the instance pool with a selection strategy.
// It is the only place that decides whether any instance is available.
package loadbalancer
