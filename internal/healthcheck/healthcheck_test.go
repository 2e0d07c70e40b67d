package healthcheck_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/instance-balancer/internal/healthcheck"
	"github.com/angeloszaimis/instance-balancer/internal/instance"
	"github.com/angeloszaimis/instance-balancer/internal/pool"
)

// manualClock only releases the next cycle when the test ticks it.
type manualClock struct {
	ticks    chan time.Time
	requests atomic.Int32
}

func newManualClock() *manualClock {
	return &manualClock{ticks: make(chan time.Time)}
}

func (c *manualClock) After(time.Duration) <-chan time.Time {
	c.requests.Add(1)
	return c.ticks
}

func (c *manualClock) Tick() {
	c.ticks <- time.Now()
}

var _ = Describe("Healthcheck", func() {
	var (
		p            *pool.Pool
		log          *slog.Logger
		mockInstance *httptest.Server
		status       atomic.Int32
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		p = pool.New()
		status.Store(http.StatusOK)

		mockInstance = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(int(status.Load()))
		}))
	})

	AfterEach(func() {
		mockInstance.Close()
	})

	Describe("Probe", func() {
		var checker *healthcheck.Checker

		BeforeEach(func() {
			checker = healthcheck.New(p, healthcheck.Config{Timeout: 200 * time.Millisecond}, log)
		})

		It("should succeed on 200 OK", func() {
			Expect(checker.Probe(context.Background(), instanceOf(mockInstance))).To(Succeed())
		})

		It("should fail on a non-ok status", func() {
			status.Store(http.StatusServiceUnavailable)

			err := checker.Probe(context.Background(), instanceOf(mockInstance))
			var failure *healthcheck.ProbeFailure
			Expect(errors.As(err, &failure)).To(BeTrue())
			Expect(failure.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("should fail when the connection is refused", func() {
			dead := httptest.NewServer(http.NotFoundHandler())
			inst := instanceOf(dead)
			dead.Close()

			err := checker.Probe(context.Background(), inst)
			var failure *healthcheck.ProbeFailure
			Expect(errors.As(err, &failure)).To(BeTrue())
			Expect(failure.Err).To(HaveOccurred())
			Expect(failure.StatusCode).To(BeZero())
		})

		It("should fail when the probe times out", func() {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(500 * time.Millisecond)
			}))
			defer slow.Close()

			start := time.Now()
			Expect(checker.Probe(context.Background(), instanceOf(slow))).NotTo(Succeed())
			Expect(time.Since(start)).To(BeNumerically("<", 450*time.Millisecond))
		})

		It("should use the configured path", func() {
			custom := healthcheck.New(p, healthcheck.Config{Path: "/ready"}, log)
			Expect(custom.Probe(context.Background(), instanceOf(mockInstance))).NotTo(Succeed())
		})
	})

	Describe("RunCycle", func() {
		var checker *healthcheck.Checker

		BeforeEach(func() {
			checker = healthcheck.New(p, healthcheck.Config{Timeout: 200 * time.Millisecond}, log)
		})

		It("should mark a failing instance unhealthy within one cycle", func() {
			inst := instanceOf(mockInstance)
			p.Add(inst.Address, inst.Port)

			status.Store(http.StatusInternalServerError)
			checker.RunCycle(context.Background())

			Expect(p.Snapshot()[0].Healthy).To(BeFalse())
		})

		It("should mark a recovered instance healthy again", func() {
			inst := instanceOf(mockInstance)
			p.Add(inst.Address, inst.Port)
			p.SetHealth(inst.Address, inst.Port, false)

			checker.RunCycle(context.Background())

			Expect(p.Snapshot()[0].Healthy).To(BeTrue())
		})

		It("should not let a slow instance delay the others", func() {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(time.Second)
			}))
			defer slow.Close()

			dead := httptest.NewServer(http.NotFoundHandler())
			deadInst := instanceOf(dead)
			dead.Close()

			slowInst := instanceOf(slow)
			healthyInst := instanceOf(mockInstance)
			p.Add(slowInst.Address, slowInst.Port)
			p.Add(deadInst.Address, deadInst.Port)
			p.Add(healthyInst.Address, healthyInst.Port)

			start := time.Now()
			checker.RunCycle(context.Background())
			Expect(time.Since(start)).To(BeNumerically("<", 900*time.Millisecond))

			snap := p.Snapshot()
			Expect(snap[0].Healthy).To(BeFalse())
			Expect(snap[1].Healthy).To(BeFalse())
			Expect(snap[2].Healthy).To(BeTrue())
		})

		It("should handle an empty pool", func() {
			Expect(func() { checker.RunCycle(context.Background()) }).NotTo(Panic())
		})

		It("should leave flags alone when the cycle is cancelled", func() {
			inst := instanceOf(mockInstance)
			p.Add(inst.Address, inst.Port)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			checker.RunCycle(ctx)

			Expect(p.Snapshot()[0].Healthy).To(BeTrue())
		})
	})

	Describe("Start and Stop", func() {
		var (
			clock   *manualClock
			checker *healthcheck.Checker
		)

		BeforeEach(func() {
			clock = newManualClock()
			checker = healthcheck.New(p, healthcheck.Config{
				Interval: time.Hour,
				Timeout:  200 * time.Millisecond,
			}, log, healthcheck.WithClock(clock))

			inst := instanceOf(mockInstance)
			p.Add(inst.Address, inst.Port)
		})

		AfterEach(func() {
			checker.Stop()
		})

		It("should probe immediately and then once per tick", func() {
			status.Store(http.StatusInternalServerError)
			checker.Start(context.Background())

			Eventually(func() bool { return p.Snapshot()[0].Healthy }).Should(BeFalse())
			Eventually(clock.requests.Load).Should(Equal(int32(1)))

			status.Store(http.StatusOK)
			Consistently(func() bool { return p.Snapshot()[0].Healthy }, 100*time.Millisecond).Should(BeFalse())

			clock.Tick()
			Eventually(func() bool { return p.Snapshot()[0].Healthy }).Should(BeTrue())
			Eventually(clock.requests.Load).Should(Equal(int32(2)))
		})

		It("should pick up instances added between cycles", func() {
			checker.Start(context.Background())
			Eventually(clock.requests.Load).Should(Equal(int32(1)))

			dead := httptest.NewServer(http.NotFoundHandler())
			deadInst := instanceOf(dead)
			dead.Close()
			p.Add(deadInst.Address, deadInst.Port)
			Expect(p.Snapshot()[1].Healthy).To(BeTrue())

			clock.Tick()
			Eventually(func() bool { return p.Snapshot()[1].Healthy }).Should(BeFalse())
		})

		It("should stop when Stop is called", func() {
			checker.Start(context.Background())
			Eventually(clock.requests.Load).Should(Equal(int32(1)))

			done := make(chan struct{})
			go func() {
				defer close(done)
				checker.Stop()
			}()
			Eventually(done).Should(BeClosed())
		})

		It("should stop when the parent context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			checker.Start(ctx)
			Eventually(clock.requests.Load).Should(Equal(int32(1)))

			cancel()
			Consistently(clock.requests.Load, 100*time.Millisecond).Should(Equal(int32(1)))
		})

		It("should ignore a second Start", func() {
			checker.Start(context.Background())
			checker.Start(context.Background())
			Eventually(clock.requests.Load).Should(Equal(int32(1)))
			Consistently(clock.requests.Load, 100*time.Millisecond).Should(Equal(int32(1)))
		})
	})
})

func instanceOf(server *httptest.Server) instance.Instance {
	u, err := url.Parse(server.URL)
	Expect(err).NotTo(HaveOccurred())

	host, portStr, err := net.SplitHostPort(u.Host)
	Expect(err).NotTo(HaveOccurred())

	port, err := strconv.Atoi(portStr)
	Expect(err).NotTo(HaveOccurred())

	return instance.New(host, port)
}
