package observability

import (
	"sync"

	"go.uber.org/zap"
)

// Reporter is a fire-and-forget sink for unexpected failures.
type Reporter interface {
	Capture(err error, fields ...zap.Field)
}

type report struct {
	err    error
	fields []zap.Field
}

// AsyncReporter buffers reports and writes them from a single goroutine.
// Capture never blocks; reports that do not fit the buffer are dropped.
type AsyncReporter struct {
	logger  *zap.Logger
	metrics *Metrics
	queue   chan report
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncReporter starts the drain goroutine.
func NewAsyncReporter(logger *zap.Logger, metrics *Metrics, bufferSize int) *AsyncReporter {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	r := &AsyncReporter{
		logger:  logger,
		metrics: metrics,
		queue:   make(chan report, bufferSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Capture enqueues err for reporting.
func (r *AsyncReporter) Capture(err error, fields ...zap.Field) {
	if r == nil || err == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- report{err: err, fields: fields}:
	default:
		r.metrics.RecordDroppedReport()
	}
}

// Close stops accepting reports and waits for the buffer to drain.
func (r *AsyncReporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *AsyncReporter) run() {
	defer close(r.done)
	for rep := range r.queue {
		fields := append([]zap.Field{zap.Error(rep.err)}, rep.fields...)
		r.logger.Error("captured exception", fields...)
	}
}
