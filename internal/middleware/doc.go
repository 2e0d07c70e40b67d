// Package middleware wraps balancer routes with access logging and an
// optional token bucket rate limit on dispatched requests.
package middleware
