// Package healthcheck implements the background probing loop that decides
// which pool instances are healthy.
//
// Every cycle snapshots the pool, probes all instances concurrently with a
// short timeout and writes the results back through the pool. Probe
// failures never leave this package; they only flip the health flag.
package healthcheck
