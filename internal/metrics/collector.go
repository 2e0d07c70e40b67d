package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

type EventType string

const (
	EventInstanceSelected EventType = "instance_selected"
	EventForwardCompleted EventType = "forward_completed"
	EventForwardFailed    EventType = "forward_failed"
	EventPoolEmpty        EventType = "pool_empty"
	EventHealthReported   EventType = "health_reported"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Instance   string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

// Collector consumes metric events on a single goroutine and fans them out
// to the in-memory snapshot and the Prometheus registry.
type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *PrometheusMetrics
	logger     *slog.Logger
	done       chan struct{}
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: NewPrometheusMetrics(),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. Events are dropped when the buffer
// is full; a nil collector swallows everything.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Done is closed once the collector has drained and stopped.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")
	defer close(c.done)

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventInstanceSelected:
		c.metrics.RecordSelection(event.Instance)
		c.prometheus.selections.WithLabelValues(event.Instance).Inc()

	case EventForwardCompleted:
		c.metrics.RecordResponse(event.Instance, event.Duration, event.StatusCode)
		c.prometheus.forwardDuration.WithLabelValues(event.Instance).Observe(event.Duration.Seconds())
		c.prometheus.responses.WithLabelValues(event.Instance, strconv.Itoa(event.StatusCode)).Inc()

	case EventForwardFailed:
		c.metrics.RecordFailure(event.Instance)
		c.prometheus.forwardFailures.WithLabelValues(event.Instance).Inc()

	case EventPoolEmpty:
		c.metrics.RecordUnavailable()
		c.prometheus.unavailable.Inc()

	case EventHealthReported:
		c.metrics.UpdateHealthStatus(event.Instance, event.Healthy)
		healthy := 0.0
		if event.Healthy {
			healthy = 1
		}
		c.prometheus.instanceHealthy.WithLabelValues(event.Instance).Set(healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(algorithm string) Snapshot {
	return c.metrics.Snapshot(algorithm)
}
