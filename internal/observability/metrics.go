package observability

import (
	"strconv"
	"sync"
	"time"
)

// Interaction outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	interactions map[string]int64
	requestCount map[string]int64
	errorCount   map[string]int64
	requestTime  map[string]time.Duration
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Interactions map[string]int64 `json:"interactions"`
	Requests     map[string]int64 `json:"requests"`
	Errors       map[string]int64 `json:"errors"`
	RequestMS    map[string]int64 `json:"request_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		interactions: make(map[string]int64),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		requestTime:  make(map[string]time.Duration),
	}
}

// RecordInteraction counts a handled Discord interaction by kind and outcome.
func (m *Metrics) RecordInteraction(kind, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions[kind+"|"+outcome]++
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestTime[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Interactions: copyCounts(m.interactions),
		Requests:     copyCounts(m.requestCount),
		Errors:       copyCounts(m.errorCount),
		RequestMS:    make(map[string]int64, len(m.requestTime)),
	}
	for k, v := range m.requestTime {
		snap.RequestMS[k] = v.Milliseconds()
	}
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
