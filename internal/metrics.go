package internal

import "sync/atomic"

// Metrics counts the client's session activity. Snapshot feeds the status
// line; the counters reset with the process.
type Metrics struct {
	reconnects atomic.Uint64
	sent       atomic.Uint64
	queued     atomic.Uint64
	dropped    atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncReconnect() {
	m.reconnects.Add(1)
}

func (m *Metrics) IncSent() {
	m.sent.Add(1)
}

func (m *Metrics) IncQueued() {
	m.queued.Add(1)
}

func (m *Metrics) IncDropped() {
	m.dropped.Add(1)
}

type MetricsSnapshot struct {
	Reconnects uint64
	Sent       uint64
	Queued     uint64
	Dropped    uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Reconnects: m.reconnects.Load(),
		Sent:       m.sent.Load(),
		Queued:     m.queued.Load(),
		Dropped:    m.dropped.Load(),
	}
}
