package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests and for the
// collaboration engine's delivery and durability paths.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	updatesProcessed    int64
	broadcastsDelivered int64
	broadcastsDropped   int64
	degradedWrites      int64
}

// EngineCounters is a point-in-time copy of the engine counters.
type EngineCounters struct {
	UpdatesProcessed    int64
	BroadcastsDelivered int64
	BroadcastsDropped   int64
	DegradedWrites      int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
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

// RecordUpdate counts one accepted collaboration update.
func (m *Metrics) RecordUpdate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatesProcessed++
}

// RecordBroadcast accumulates delivery attempts for one broadcast.
func (m *Metrics) RecordBroadcast(delivered, dropped int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastsDelivered += int64(delivered)
	m.broadcastsDropped += int64(dropped)
}

// RecordDegradedWrite counts a failed or timed-out durable history write.
// These are the operational signal for the audit path; the in-memory
// state keeps serving regardless.
func (m *Metrics) RecordDegradedWrite() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degradedWrites++
}

// Engine returns a copy of the engine counters.
func (m *Metrics) Engine() EngineCounters {
	if m == nil {
		return EngineCounters{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return EngineCounters{
		UpdatesProcessed:    m.updatesProcessed,
		BroadcastsDelivered: m.broadcastsDelivered,
		BroadcastsDropped:   m.broadcastsDropped,
		DegradedWrites:      m.degradedWrites,
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
