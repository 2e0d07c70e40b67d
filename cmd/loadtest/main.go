// Loadtest sends concurrent requests through the balancer and reports how
// they were distributed across instances, using the X-Backend-Server header.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8000/process -concurrency 10 -requests 1000
//	go run ./cmd/loadtest -url http://localhost:8000/process -out summary.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const unknownInstance = "(unknown)"

type options struct {
	URL         string
	Method      string
	Concurrency int
	Requests    int
	Timeout     time.Duration
}

// InstanceStats aggregates the requests answered by one instance.
type InstanceStats struct {
	Count      int           `json:"count"`
	AvgLatency time.Duration `json:"avg_latency"`
	latencies  []time.Duration
}

// Summary is the outcome of a load test run.
type Summary struct {
	Total       int                       `json:"total"`
	Success     int                       `json:"success"`
	Unavailable int                       `json:"unavailable"`
	Failure     int                       `json:"failure"`
	Elapsed     time.Duration             `json:"elapsed"`
	P50         time.Duration             `json:"p50"`
	P99         time.Duration             `json:"p99"`
	StatusCodes map[int]int               `json:"status_codes"`
	Instances   map[string]*InstanceStats `json:"instances"`
}

type result struct {
	instance   string
	statusCode int
	latency    time.Duration
	err        error
}

func main() {
	opts := options{}
	flag.StringVar(&opts.URL, "url", "http://localhost:8000/process", "target URL")
	flag.StringVar(&opts.Method, "method", http.MethodGet, "HTTP method")
	flag.IntVar(&opts.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.IntVar(&opts.Requests, "requests", 100, "total number of requests to send")
	flag.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-request timeout")
	outJSON := flag.String("out", "", "write JSON summary to this file (optional)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	summary, err := run(ctx, &http.Client{Timeout: opts.Timeout}, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printSummary(os.Stdout, summary)

	if *outJSON != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode summary: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outJSON, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write summary: %v\n", err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, client *http.Client, opts options) (*Summary, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Requests < 0 {
		opts.Requests = 0
	}

	results := make([]result, opts.Requests)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	start := time.Now()
	for i := 0; i < opts.Requests; i++ {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			results[i] = send(client, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(results, time.Since(start)), nil
}

func send(client *http.Client, req *http.Request) result {
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return result{latency: latency, err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	inst := resp.Header.Get("X-Backend-Server")
	if inst == "" {
		inst = unknownInstance
	}
	return result{instance: inst, statusCode: resp.StatusCode, latency: latency}
}

func summarize(results []result, elapsed time.Duration) *Summary {
	s := &Summary{
		Total:       len(results),
		Elapsed:     elapsed,
		StatusCodes: make(map[int]int),
		Instances:   make(map[string]*InstanceStats),
	}

	all := make([]time.Duration, 0, len(results))
	for _, r := range results {
		all = append(all, r.latency)
		if r.err != nil {
			s.Failure++
			continue
		}
		s.StatusCodes[r.statusCode]++

		switch {
		case r.statusCode == http.StatusServiceUnavailable:
			s.Unavailable++
			continue
		case r.statusCode >= 200 && r.statusCode < 300:
			s.Success++
		default:
			s.Failure++
		}

		stats, ok := s.Instances[r.instance]
		if !ok {
			stats = &InstanceStats{}
			s.Instances[r.instance] = stats
		}
		stats.Count++
		stats.latencies = append(stats.latencies, r.latency)
	}

	for _, stats := range s.Instances {
		var sum time.Duration
		for _, l := range stats.latencies {
			sum += l
		}
		stats.AvgLatency = sum / time.Duration(len(stats.latencies))
	}

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	s.P50 = percentile(all, 0.50)
	s.P99 = percentile(all, 0.99)

	return s
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printSummary(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "requests: %d  success: %d  unavailable: %d  failure: %d  elapsed: %v\n",
		s.Total, s.Success, s.Unavailable, s.Failure, s.Elapsed)
	fmt.Fprintf(w, "latency p50: %v  p99: %v\n", s.P50, s.P99)

	names := make([]string, 0, len(s.Instances))
	for name := range s.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := s.Instances[name]
		share := float64(stats.Count) / float64(s.Total) * 100
		fmt.Fprintf(w, "  %-24s %6d  %5.1f%%  avg %v\n", name, stats.Count, share, stats.AvgLatency)
	}
}
