package gostream

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the flush-latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for an output stream.
type Metrics struct {
	// Data movement counters
	SendOps      atomic.Uint64 // Total Send/SendV calls
	SendBytes    atomic.Uint64 // Total bytes accepted via Send/SendV
	FlushOps     atomic.Uint64 // Total flush attempts (explicit or io-loop driven)
	FlushErrors  atomic.Uint64 // Flush attempts that returned a transport error
	PartialFlush atomic.Uint64 // Flushes that wrote fewer bytes than buffered

	// Would-block / readiness
	WouldBlockOps atomic.Uint64 // Write/writev/sendfile calls that returned EAGAIN

	// Corking
	CorkToggles atomic.Uint64 // Number of Cork(true)/Cork(false) transitions

	// Sendfile fast path
	SendfileOps      atomic.Uint64 // Successful zero-copy sendfile transfers
	SendfileBytes    atomic.Uint64 // Bytes moved via sendfile
	SendfileFallback atomic.Uint64 // Times sendfile was rejected and buffered copy was used

	// Buffer growth
	OverflowOps atomic.Uint64 // Times a send could not grow the buffer enough

	// Performance tracking (flush-call latency)
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts)
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSend records bytes accepted by Send/SendV, whether written
// directly to the fd or buffered.
func (m *Metrics) RecordSend(bytes uint64) {
	m.SendOps.Add(1)
	m.SendBytes.Add(bytes)
}

// RecordFlush records a flush attempt and its latency.
func (m *Metrics) RecordFlush(latencyNs uint64, wroteAll bool, success bool) {
	m.FlushOps.Add(1)
	if !success {
		m.FlushErrors.Add(1)
	} else if !wroteAll {
		m.PartialFlush.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWouldBlock records a write/writev/sendfile call that returned EAGAIN.
func (m *Metrics) RecordWouldBlock() {
	m.WouldBlockOps.Add(1)
}

// RecordCorkToggle records a Cork(true)/Cork(false) transition.
func (m *Metrics) RecordCorkToggle() {
	m.CorkToggles.Add(1)
}

// RecordSendfile records a successful zero-copy transfer.
func (m *Metrics) RecordSendfile(bytes uint64) {
	m.SendfileOps.Add(1)
	m.SendfileBytes.Add(bytes)
}

// RecordSendfileFallback records sendfile rejection and fallback to a
// buffered copy.
func (m *Metrics) RecordSendfileFallback() {
	m.SendfileFallback.Add(1)
}

// RecordOverflow records a send that could not grow the buffer enough.
func (m *Metrics) RecordOverflow() {
	m.OverflowOps.Add(1)
}

// recordLatency records flush latency and updates the histogram.
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the stream as closed for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	SendOps      uint64
	SendBytes    uint64
	FlushOps     uint64
	FlushErrors  uint64
	PartialFlush uint64

	WouldBlockOps uint64
	CorkToggles   uint64

	SendfileOps      uint64
	SendfileBytes    uint64
	SendfileFallback uint64

	OverflowOps uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	FlushSuccessRate float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SendOps:          m.SendOps.Load(),
		SendBytes:        m.SendBytes.Load(),
		FlushOps:         m.FlushOps.Load(),
		FlushErrors:      m.FlushErrors.Load(),
		PartialFlush:     m.PartialFlush.Load(),
		WouldBlockOps:    m.WouldBlockOps.Load(),
		CorkToggles:      m.CorkToggles.Load(),
		SendfileOps:      m.SendfileOps.Load(),
		SendfileBytes:    m.SendfileBytes.Load(),
		SendfileFallback: m.SendfileFallback.Load(),
		OverflowOps:      m.OverflowOps.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.FlushOps > 0 {
		snap.FlushSuccessRate = float64(snap.FlushOps-snap.FlushErrors) / float64(snap.FlushOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters. Intended for tests.
func (m *Metrics) Reset() {
	m.SendOps.Store(0)
	m.SendBytes.Store(0)
	m.FlushOps.Store(0)
	m.FlushErrors.Store(0)
	m.PartialFlush.Store(0)
	m.WouldBlockOps.Store(0)
	m.CorkToggles.Store(0)
	m.SendfileOps.Store(0)
	m.SendfileBytes.Store(0)
	m.SendfileFallback.Store(0)
	m.OverflowOps.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection for an output stream.
type Observer interface {
	// ObserveSend is called for each non-empty Send/SendV call with the
	// number of bytes it accepted, whether written directly or buffered.
	ObserveSend(bytes uint64)

	// ObserveFlush is called after each flush attempt.
	ObserveFlush(latencyNs uint64, wroteAll bool, success bool)

	// ObserveWouldBlock is called when a write/writev/sendfile returns EAGAIN.
	ObserveWouldBlock()

	// ObserveCorkToggle is called on every Cork(true)/Cork(false) transition.
	ObserveCorkToggle()

	// ObserveSendfile is called after a successful zero-copy transfer.
	ObserveSendfile(bytes uint64)

	// ObserveSendfileFallback is called when sendfile is rejected and the
	// transfer falls back to a buffered copy.
	ObserveSendfileFallback()

	// ObserveOverflow is called when the ring buffer cannot grow enough
	// to satisfy a send.
	ObserveOverflow()
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSend(uint64)                  {}
func (NoOpObserver) ObserveFlush(uint64, bool, bool)      {}
func (NoOpObserver) ObserveWouldBlock()                  {}
func (NoOpObserver) ObserveCorkToggle()                  {}
func (NoOpObserver) ObserveSendfile(uint64)               {}
func (NoOpObserver) ObserveSendfileFallback()             {}
func (NoOpObserver) ObserveOverflow()                     {}

// MetricsObserver implements Observer using the built-in Metrics type.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSend(bytes uint64) {
	o.metrics.RecordSend(bytes)
}

func (o *MetricsObserver) ObserveFlush(latencyNs uint64, wroteAll bool, success bool) {
	o.metrics.RecordFlush(latencyNs, wroteAll, success)
}

func (o *MetricsObserver) ObserveWouldBlock() {
	o.metrics.RecordWouldBlock()
}

func (o *MetricsObserver) ObserveCorkToggle() {
	o.metrics.RecordCorkToggle()
}

func (o *MetricsObserver) ObserveSendfile(bytes uint64) {
	o.metrics.RecordSendfile(bytes)
}

func (o *MetricsObserver) ObserveSendfileFallback() {
	o.metrics.RecordSendfileFallback()
}

func (o *MetricsObserver) ObserveOverflow() {
	o.metrics.RecordOverflow()
}

// Compile-time interface checks
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
