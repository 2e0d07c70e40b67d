package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/instance-balancer/config"
	"github.com/angeloszaimis/instance-balancer/internal/forwarder"
	"github.com/angeloszaimis/instance-balancer/internal/handler"
	"github.com/angeloszaimis/instance-balancer/internal/healthcheck"
	"github.com/angeloszaimis/instance-balancer/internal/httpserver"
	"github.com/angeloszaimis/instance-balancer/internal/instance"
	"github.com/angeloszaimis/instance-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/instance-balancer/internal/metrics"
	"github.com/angeloszaimis/instance-balancer/internal/middleware"
	"github.com/angeloszaimis/instance-balancer/internal/pool"
	"github.com/angeloszaimis/instance-balancer/internal/strategy"
	"github.com/angeloszaimis/instance-balancer/pkg/logger"
)

const (
	strategyName = "round-robin"

	// room left after a forward timeout to write the 503
	writeMargin = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	collector.Start(ctx)

	instancePool := initializePool(cfg, log)

	checker := healthcheck.New(instancePool, healthcheck.Config{
		Interval: cfg.HealthCheckInterval(),
		Timeout:  cfg.HealthCheckTimeout(),
		Path:     cfg.HealthCheck.Path,
	}, log, healthcheck.WithCollector(collector))
	checker.Start(ctx)
	defer checker.Stop()

	lb := loadbalancer.NewLoadBalancer(instancePool, strategy.NewRoundRobinStrategy())
	loadBalancerHandler := handler.NewLoadBalancerHandler(log, lb, forwarder.New(cfg.ForwardTimeout()), collector)
	limiter := middleware.NewLimiter(cfg.Dispatch.RateLimit, cfg.Dispatch.Burst)

	router := setupRouter(log, loadBalancerHandler, collector, limiter)

	srv, err := httpserver.New(cfg.Server.Address, router,
		serverTimeouts(httpserver.DefaultTimeouts, cfg.ForwardTimeout()))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		log.Info("Load balancer listening",
			slog.String("address", srv.Addr()),
			slog.Int("instances", instancePool.Len()))
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
			cancel()
			checker.Stop()
			os.Exit(1)
		}
	}
}

// initializePool seeds the pool from config. Every instance starts healthy
// until the first probe cycle says otherwise.
func initializePool(cfg *config.Config, log *slog.Logger) *pool.Pool {
	seed := make([]instance.Instance, 0, len(cfg.Instances))
	for _, ic := range cfg.Instances {
		seed = append(seed, instance.New(ic.Address, ic.Port))
	}

	if len(seed) == 0 {
		log.Warn("No instances configured, waiting for instances to be added")
	}

	return pool.New(seed...)
}

// serverTimeouts stretches the write timeout past the forward timeout, so a
// slow instance ends in a relayed response or a 503, never a cut connection.
func serverTimeouts(base httpserver.Timeouts, forwardTimeout time.Duration) httpserver.Timeouts {
	if floor := forwardTimeout + writeMargin; base.Write < floor {
		base.Write = floor
	}
	return base
}
