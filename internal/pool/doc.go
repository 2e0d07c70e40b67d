// Package pool holds the ordered, mutable set of backend instances shared
// by the health checker, the selector and the admin handlers.
//
// Every mutation and every snapshot goes through a single RWMutex, so a
// reader never sees a partially updated sequence.
package pool
