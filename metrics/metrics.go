// Package metrics keeps the service's operational counters in memory and
// exposes a JSON-friendly snapshot. Recording a metric never blocks the
// request or worker path.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"converter/models"
)

// Metrics is safe for concurrent use by all request handlers and workers.
type Metrics struct {
	started time.Time

	admitted     atomic.Int64
	rejected     atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	retries      atomic.Int64
	rateLimited  atomic.Int64
	busyWorkers  atomic.Int64
	totalWorkers atomic.Int64

	queueHigh       atomic.Int64
	queueLow        atomic.Int64
	queueProcessing atomic.Int64
	queueDelayed    atomic.Int64

	mu         sync.Mutex
	rejections map[string]int64 // "kind|tier"
	outcomes   map[string]int64 // "source->target|status"
}

func New() *Metrics {
	return &Metrics{
		started:    time.Now(),
		rejections: make(map[string]int64),
		outcomes:   make(map[string]int64),
	}
}

// SetWorkerCount records the configured pool size for the utilization gauge.
func (m *Metrics) SetWorkerCount(n int) {
	m.totalWorkers.Store(int64(n))
}

// RecordAdmission counts a request that passed the admission gate.
func (m *Metrics) RecordAdmission() {
	m.admitted.Add(1)
}

// RecordRejection counts an admission rejection keyed by kind and tier.
func (m *Metrics) RecordRejection(kind models.RejectionKind, tier models.Tier) {
	m.rejected.Add(1)
	m.mu.Lock()
	m.rejections[fmt.Sprintf("%s|%s", kind, tier)]++
	m.mu.Unlock()
}

// RecordRateLimited counts a request turned away by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

// RecordOutcome counts a terminal conversion outcome by format pair.
func (m *Metrics) RecordOutcome(source, target string, status models.Status) {
	switch status {
	case models.StatusCompleted:
		m.completed.Add(1)
	case models.StatusFailed:
		m.failed.Add(1)
	}
	m.mu.Lock()
	m.outcomes[fmt.Sprintf("%s->%s|%s", source, target, status)]++
	m.mu.Unlock()
}

// RecordRetry counts a scheduled retry attempt.
func (m *Metrics) RecordRetry() {
	m.retries.Add(1)
}

// WorkerBusy adjusts the busy-worker gauge by delta (+1 on dequeue, -1 on
// completion).
func (m *Metrics) WorkerBusy(delta int) {
	m.busyWorkers.Add(int64(delta))
}

// SetQueueDepths refreshes the queue depth gauges.
func (m *Metrics) SetQueueDepths(high, low, processing, delayed int64) {
	m.queueHigh.Store(high)
	m.queueLow.Store(low)
	m.queueProcessing.Store(processing)
	m.queueDelayed.Store(delayed)
}

// Snapshot is the JSON shape served at /metrics.
type Snapshot struct {
	UptimeSeconds   float64          `json:"uptime_seconds"`
	Admitted        int64            `json:"admitted_total"`
	Rejected        int64            `json:"rejected_total"`
	Completed       int64            `json:"completed_total"`
	Failed          int64            `json:"failed_total"`
	Retries         int64            `json:"retries_total"`
	RateLimited     int64            `json:"rate_limited_total"`
	BusyWorkers     int64            `json:"busy_workers"`
	Workers         int64            `json:"workers"`
	QueueHigh       int64            `json:"queue_depth_high"`
	QueueLow        int64            `json:"queue_depth_low"`
	QueueProcessing int64            `json:"queue_depth_processing"`
	QueueDelayed    int64            `json:"queue_depth_delayed"`
	Rejections      map[string]int64 `json:"rejections_by_kind_tier"`
	Outcomes        map[string]int64 `json:"outcomes_by_pair_status"`
}

// Snapshot returns a point-in-time copy of every counter.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		UptimeSeconds:   time.Since(m.started).Seconds(),
		Admitted:        m.admitted.Load(),
		Rejected:        m.rejected.Load(),
		Completed:       m.completed.Load(),
		Failed:          m.failed.Load(),
		Retries:         m.retries.Load(),
		RateLimited:     m.rateLimited.Load(),
		BusyWorkers:     m.busyWorkers.Load(),
		Workers:         m.totalWorkers.Load(),
		QueueHigh:       m.queueHigh.Load(),
		QueueLow:        m.queueLow.Load(),
		QueueProcessing: m.queueProcessing.Load(),
		QueueDelayed:    m.queueDelayed.Load(),
		Rejections:      make(map[string]int64),
		Outcomes:        make(map[string]int64),
	}
	m.mu.Lock()
	for k, v := range m.rejections {
		s.Rejections[k] = v
	}
	for k, v := range m.outcomes {
		s.Outcomes[k] = v
	}
	m.mu.Unlock()
	return s
}

// RejectionCount returns the counter for one kind/tier pair.
func (m *Metrics) RejectionCount(kind models.RejectionKind, tier models.Tier) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejections[fmt.Sprintf("%s|%s", kind, tier)]
}
