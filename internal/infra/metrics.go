package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Every failure the distribution path swallows (persistence, slow viewers,
// empty cycles) must still land here so an operator can see it.
type Metrics struct {
	// Counters
	cyclesTotal     atomic.Uint64
	cyclesSkipped   atomic.Uint64
	broadcastsSent  atomic.Uint64
	messagesDropped atomic.Uint64
	persistFailures atomic.Uint64
	historyRows     atomic.Uint64

	// Gauges
	connectedClients atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCycle records a completed calculation cycle.
func (m *Metrics) RecordCycle() {
	m.cyclesTotal.Add(1)
}

// RecordSkippedCycle records a cycle skipped due to upstream failure or
// zero valid outputs.
func (m *Metrics) RecordSkippedCycle() {
	m.cyclesSkipped.Add(1)
}

// RecordBroadcast records a push fan-out to connected viewers.
func (m *Metrics) RecordBroadcast() {
	m.broadcastsSent.Add(1)
}

// RecordDroppedMessage records a message dropped for one slow viewer.
func (m *Metrics) RecordDroppedMessage() {
	m.messagesDropped.Add(1)
}

// RecordPersistFailure records a swallowed snapshot write failure.
func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Add(1)
}

// RecordHistoryRows records appended price history samples.
func (m *Metrics) RecordHistoryRows(n int) {
	m.historyRows.Add(uint64(n))
}

// IncrementClients increments connected viewers by 1.
func (m *Metrics) IncrementClients() {
	m.connectedClients.Add(1)
}

// DecrementClients decrements connected viewers by 1.
func (m *Metrics) DecrementClients() {
	m.connectedClients.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CyclesTotal      uint64    `json:"cyclesTotal"`
	CyclesSkipped    uint64    `json:"cyclesSkipped"`
	BroadcastsSent   uint64    `json:"broadcastsSent"`
	MessagesDropped  uint64    `json:"messagesDropped"`
	PersistFailures  uint64    `json:"persistFailures"`
	HistoryRows      uint64    `json:"historyRows"`
	ConnectedClients int32     `json:"connectedClients"`
	Timestamp        time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CyclesTotal:      m.cyclesTotal.Load(),
		CyclesSkipped:    m.cyclesSkipped.Load(),
		BroadcastsSent:   m.broadcastsSent.Load(),
		MessagesDropped:  m.messagesDropped.Load(),
		PersistFailures:  m.persistFailures.Load(),
		HistoryRows:      m.historyRows.Load(),
		ConnectedClients: m.connectedClients.Load(),
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.cyclesTotal.Store(0)
	m.cyclesSkipped.Store(0)
	m.broadcastsSent.Store(0)
	m.messagesDropped.Store(0)
	m.persistFailures.Store(0)
	m.historyRows.Store(0)
	m.connectedClients.Store(0)
}
