package healthcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/instance-balancer/internal/instance"
	"github.com/angeloszaimis/instance-balancer/internal/metrics"
	"github.com/angeloszaimis/instance-balancer/internal/pool"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = time.Second
	DefaultPath     = "/health"
)

// Clock abstracts the wait between cycles.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// ProbeFailure describes why an instance was judged unhealthy.
// StatusCode is zero when no response was received.
type ProbeFailure struct {
	Instance   instance.Instance
	StatusCode int
	Err        error
}

func (f *ProbeFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("probe %s: %v", f.Instance.HostPort(), f.Err)
	}
	return fmt.Sprintf("probe %s: unexpected status %d", f.Instance.HostPort(), f.StatusCode)
}

func (f *ProbeFailure) Unwrap() error {
	return f.Err
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Path     string
}

type Option func(*Checker)

func WithClock(clock Clock) Option {
	return func(c *Checker) {
		c.clock = clock
	}
}

func WithClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

func WithCollector(collector *metrics.Collector) Option {
	return func(c *Checker) {
		c.collector = collector
	}
}

// Checker periodically probes every instance of a pool.
type Checker struct {
	pool      *pool.Pool
	client    *http.Client
	clock     Clock
	collector *metrics.Collector
	logger    *slog.Logger
	interval  time.Duration
	timeout   time.Duration
	path      string

	mutex  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Checker for p. Zero values in cfg fall back to the defaults.
func New(p *pool.Pool, cfg Config, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		pool:     p,
		client:   &http.Client{},
		clock:    systemClock{},
		logger:   logger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		path:     cfg.Path,
	}

	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.path == "" {
		c.path = DefaultPath
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start launches the probing loop. The first cycle runs immediately.
// Calling Start on a running checker does nothing.
func (c *Checker) Start(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)
}

// Stop cancels the loop and waits for the current cycle to finish.
func (c *Checker) Stop() {
	c.mutex.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mutex.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (c *Checker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.logger.Info("Health checker started",
		slog.Duration("interval", c.interval),
		slog.Duration("timeout", c.timeout))

	for {
		c.RunCycle(ctx)

		select {
		case <-ctx.Done():
			c.logger.Info("Health checker stopped")
			return
		case <-c.clock.After(c.interval):
		}
	}
}

// RunCycle probes every instance currently in the pool once and records
// the results. It returns when all probes have finished.
func (c *Checker) RunCycle(ctx context.Context) {
	var g errgroup.Group

	for _, inst := range c.pool.Snapshot() {
		g.Go(func() error {
			c.check(ctx, inst)
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Checker) check(ctx context.Context, inst instance.Instance) {
	err := c.Probe(ctx, inst)

	// a cancelled cycle says nothing about the instance
	if ctx.Err() != nil {
		return
	}

	healthy := err == nil
	if err != nil {
		c.logger.Debug("Probe failed",
			slog.String("instance", inst.HostPort()),
			slog.String("error", err.Error()))
	}

	c.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventHealthReported,
		Instance: inst.HostPort(),
		Healthy:  healthy,
	})

	if !c.pool.SetHealth(inst.Address, inst.Port, healthy) {
		return
	}

	if healthy {
		c.logger.Info("Instance is back up",
			slog.String("instance", inst.HostPort()))
	} else {
		c.logger.Warn("Instance is down",
			slog.String("instance", inst.HostPort()))
	}
}

// Probe sends one bounded GET to the instance's health endpoint.
// It returns nil on 200 OK and a *ProbeFailure otherwise.
func (c *Checker) Probe(ctx context.Context, inst instance.Instance) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.URL(c.path, "").String(), nil)
	if err != nil {
		return &ProbeFailure{Instance: inst, Err: err}
	}

	res, err := c.client.Do(req)
	if err != nil {
		return &ProbeFailure{Instance: inst, Err: err}
	}
	defer res.Body.Close()

	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK {
		return &ProbeFailure{Instance: inst, StatusCode: res.StatusCode}
	}

	return nil
}
