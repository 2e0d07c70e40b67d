package strategy

import (
	"github.com/angeloszaimis/instance-balancer/internal/instance"
)

// Strategy picks one instance out of an already filtered, healthy list.
type Strategy interface {
	SelectInstance(instances []instance.Instance) (instance.Instance, bool)
}
