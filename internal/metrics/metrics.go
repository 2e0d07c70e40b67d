package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxResponseSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	selections    map[string]int64
	failures      map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	unavailable   int64
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                      `json:"total_requests"`
	Unavailable   int64                      `json:"unavailable"`
	Uptime        time.Duration              `json:"uptime"`
	Instances     map[string]InstanceMetrics `json:"instances"`
	Algorithm     string                     `json:"algorithm"`
}

type InstanceMetrics struct {
	Selections  int64         `json:"selections"`
	Failures    int64         `json:"failures"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func (m *Metrics) RecordSelection(instance string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[instance]++
}

func (m *Metrics) RecordFailure(instance string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures[instance]++
}

func (m *Metrics) RecordUnavailable() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.unavailable++
}

func (m *Metrics) RecordResponse(instance string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[instance] = append(m.responseTimes[instance], duration)

	if len(m.responseTimes[instance]) > maxResponseSamples {
		m.responseTimes[instance] = m.responseTimes[instance][1:]
	}

	if m.statusCodes[instance] == nil {
		m.statusCodes[instance] = make(map[int]int64)
	}
	m.statusCodes[instance][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(instance string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[instance] = healthy
}

// Snapshot copies the current counters. Every selection counts as one
// dispatched request; requests rejected with no healthy instance are
// counted separately as unavailable.
func (m *Metrics) Snapshot(algorithm string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Unavailable: m.unavailable,
		Uptime:      time.Since(m.startTime),
		Instances:   make(map[string]InstanceMetrics),
		Algorithm:   algorithm,
	}
	snap.TotalRequests = m.unavailable

	known := make(map[string]bool)
	for inst := range m.selections {
		known[inst] = true
	}
	for inst := range m.failures {
		known[inst] = true
	}
	for inst := range m.responseTimes {
		known[inst] = true
	}
	for inst := range m.healthStatus {
		known[inst] = true
	}

	for inst := range known {
		snap.TotalRequests += m.selections[inst]

		im := InstanceMetrics{
			Selections:  m.selections[inst],
			Failures:    m.failures[inst],
			Healthy:     m.healthStatus[inst],
			StatusCodes: make(map[int]int64, len(m.statusCodes[inst])),
		}
		for code, count := range m.statusCodes[inst] {
			im.StatusCodes[code] = count
		}

		durations := m.responseTimes[inst]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			im.AvgResponse = average(sorted)
			im.P50Response = percentile(sorted, 0.50)
			im.P95Response = percentile(sorted, 0.95)
			im.P99Response = percentile(sorted, 0.99)
		}

		snap.Instances[inst] = im
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		selections:    make(map[string]int64),
		failures:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
