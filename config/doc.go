// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the balancer's listen address, the
// initial instance pool, health check timing, forwarding timeout and the
// optional dispatch rate limit.
package config
