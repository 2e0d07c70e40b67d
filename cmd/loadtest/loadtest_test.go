package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Loadtest", func() {
	Describe("run", func() {
		It("should tally requests per instance header", func() {
			var n atomic.Int32
			names := []string{"a:1", "b:2"}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				i := n.Add(1) - 1
				w.Header().Set("X-Backend-Server", names[i%2])
				w.Write([]byte("{}"))
			}))
			defer server.Close()

			summary, err := run(context.Background(), server.Client(), options{
				URL:         server.URL,
				Method:      http.MethodGet,
				Concurrency: 4,
				Requests:    10,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Total).To(Equal(10))
			Expect(summary.Success).To(Equal(10))
			Expect(summary.Instances).To(HaveLen(2))
			Expect(summary.Instances["a:1"].Count).To(Equal(5))
			Expect(summary.Instances["b:2"].Count).To(Equal(5))
		})

		It("should count 503 answers as unavailable", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			summary, err := run(context.Background(), server.Client(), options{
				URL:      server.URL,
				Method:   http.MethodGet,
				Requests: 3,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Unavailable).To(Equal(3))
			Expect(summary.Instances).To(BeEmpty())
			Expect(summary.StatusCodes).To(HaveKeyWithValue(http.StatusServiceUnavailable, 3))
		})
	})

	Describe("run with a negative request count", func() {
		It("should send nothing", func() {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
			}))
			defer server.Close()

			summary, err := run(context.Background(), server.Client(), options{
				URL:      server.URL,
				Method:   http.MethodGet,
				Requests: -5,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Total).To(BeZero())
			Expect(hits.Load()).To(BeZero())
		})
	})

	Describe("summarize", func() {
		It("should count transport errors as failures", func() {
			s := summarize([]result{
				{instance: "a:1", statusCode: http.StatusOK, latency: 10 * time.Millisecond},
				{err: errors.New("connection refused"), latency: 1 * time.Millisecond},
				{instance: unknownInstance, statusCode: http.StatusInternalServerError, latency: 5 * time.Millisecond},
			}, time.Second)

			Expect(s.Success).To(Equal(1))
			Expect(s.Failure).To(Equal(2))
			Expect(s.Instances["a:1"].AvgLatency).To(Equal(10 * time.Millisecond))
			Expect(s.P50).To(Equal(5 * time.Millisecond))
		})
	})

	It("should print one line per instance", func() {
		var buf bytes.Buffer
		printSummary(&buf, &Summary{
			Total: 2,
			Instances: map[string]*InstanceStats{
				"a:1": {Count: 1},
				"b:2": {Count: 1},
			},
		})
		Expect(buf.String()).To(ContainSubstring("a:1"))
		Expect(buf.String()).To(ContainSubstring("b:2"))
		Expect(buf.String()).To(ContainSubstring("50.0%"))
	})
})
