// Package handler implements the balancer's HTTP boundary: request dispatch
// to a selected instance and the administrative pool operations.
package handler
