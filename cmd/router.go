package main

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/angeloszaimis/instance-balancer/internal/handler"
	"github.com/angeloszaimis/instance-balancer/internal/metrics"
	"github.com/angeloszaimis/instance-balancer/internal/middleware"
)

func setupRouter(log *slog.Logger, loadBalancerHandler *handler.LoadBalancerHandler, metricsCollector *metrics.Collector, limiter *rate.Limiter) http.Handler {
	mux := http.NewServeMux()
	limit := middleware.RateLimit(limiter, log)

	mux.Handle("/forward/{path...}", limit(http.HandlerFunc(loadBalancerHandler.Forward)))
	mux.Handle("/process", limit(http.HandlerFunc(loadBalancerHandler.Process)))

	mux.HandleFunc("GET /pool-status", loadBalancerHandler.PoolStatus)
	mux.HandleFunc("GET /health", loadBalancerHandler.PoolStatus)
	mux.HandleFunc("POST /instances", loadBalancerHandler.AddInstance)
	mux.HandleFunc("DELETE /instances/{index}", loadBalancerHandler.RemoveInstance)
	mux.HandleFunc("POST /instances/{index}/remove", loadBalancerHandler.RemoveInstance)
	mux.HandleFunc("POST /instances/remove", loadBalancerHandler.RemoveInstance)

	mux.HandleFunc("GET /metrics", metricsCollector.Handler(strategyName))
	mux.Handle("GET /metrics/prometheus", metricsCollector.PrometheusHandler())

	return middleware.Logging(log)(mux)
}
