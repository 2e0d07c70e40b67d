// Package strategy defines how the balancer picks an instance from the
// healthy subset of the pool.
//
// Only round robin is provided: each call takes the current value of a
// shared cursor, atomically advances it, and returns
// instances[cursor mod len(instances)]. Fairness is cyclic, not weighted.
package strategy
