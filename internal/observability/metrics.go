package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	batchCreated  map[string]int64
	batchFailed   map[string]int64
	droppedReport int64
}

// Snapshot is a copy of the counters at one point in time.
type Snapshot struct {
	Requests       map[string]int64
	Errors         map[string]int64
	BatchCreated   map[string]int64
	BatchFailed    map[string]int64
	DroppedReports int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		batchCreated: make(map[string]int64),
		batchFailed:  make(map[string]int64),
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

// RecordBatch adds the outcome of one bulk run under the given stage name.
func (m *Metrics) RecordBatch(stage string, created, failed int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCreated[stage] += int64(created)
	m.batchFailed[stage] += int64(failed)
}

// RecordDroppedReport counts error reports discarded by a full reporter buffer.
func (m *Metrics) RecordDroppedReport() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedReport++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:       copyCounts(m.requestCount),
		Errors:         copyCounts(m.errorCount),
		BatchCreated:   copyCounts(m.batchCreated),
		BatchFailed:    copyCounts(m.batchFailed),
		DroppedReports: m.droppedReport,
	}
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
