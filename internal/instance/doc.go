// Package instance defines the backend instance record tracked by the
// balancer: its network identity and its current health flag.
package instance
