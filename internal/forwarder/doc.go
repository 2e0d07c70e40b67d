// Package forwarder re-issues an inbound request to one selected instance
// and hands back the upstream status, headers and body untouched.
//
// A request is sent exactly once. Transport level failures are reported as
// ErrInstanceUnreachable; the forwarder never changes instance health.
package forwarder
