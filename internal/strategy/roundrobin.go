package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/instance-balancer/internal/instance"
)

// RoundRobin rotates through the list it is handed using one shared cursor.
// The cursor is never reset; when the list changes size between calls the
// same cursor value is applied to the new length.
type RoundRobin struct {
	cursor atomic.Uint64
}

func (rr *RoundRobin) SelectInstance(instances []instance.Instance) (instance.Instance, bool) {
	if len(instances) == 0 {
		return instance.Instance{}, false
	}

	n := rr.cursor.Add(1) - 1

	index := n % uint64(len(instances))

	return instances[index], true
}

// Cursor returns the value the next selection will use.
func (rr *RoundRobin) Cursor() uint64 {
	return rr.cursor.Load()
}

func NewRoundRobinStrategy() *RoundRobin {
	return &RoundRobin{}
}
