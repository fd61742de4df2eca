package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

type Counter struct {
	val atomic.Int64
}

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

type Gauge struct {
	val atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.val.Store(v) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	maxKeep int
}

func NewLatencyTracker(maxKeep int) *LatencyTracker {
	return &LatencyTracker{maxKeep: maxKeep}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.samples = append(lt.samples, d)
	if len(lt.samples) > lt.maxKeep {
		lt.samples = lt.samples[len(lt.samples)-lt.maxKeep:]
	}
}

func (lt *LatencyTracker) P50() time.Duration { return lt.percentile(0.50) }
func (lt *LatencyTracker) P99() time.Duration { return lt.percentile(0.99) }

func (lt *LatencyTracker) percentile(p float64) time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if len(lt.samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(lt.samples))
	copy(sorted, lt.samples)
	// insertion sort, samples are small
	for i := 1; i < len(sorted); i++ {
		key := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > key {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = key
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Metrics is the global metrics registry.
var Metrics = struct {
	CommandsReceived   Counter
	CommandErrors      Counter
	EventsAppended     Counter
	BallsCommitted     Counter
	CorrectionsApplied Counter
	DisputesRaised     Counter
	DisputesResolved   Counter
	HeldBalls          Gauge
	ActiveMatches      Gauge
	SocketClients      Gauge
	SocketDrops        Counter
	FramesSent         Counter
	InboxOverflows     Counter
	ChainBreaks        Counter
	CommandLatency     *LatencyTracker
	AppendLatency      *LatencyTracker
	SnapshotLatency    *LatencyTracker
}{
	CommandLatency:  NewLatencyTracker(1000),
	AppendLatency:   NewLatencyTracker(1000),
	SnapshotLatency: NewLatencyTracker(1000),
}

// MetricsSnapshot is a point-in-time copy of every counter and gauge,
// for the health endpoint and the inspect CLIs.
func MetricsSnapshot() map[string]int64 {
	return map[string]int64{
		"commands_received":   Metrics.CommandsReceived.Value(),
		"command_errors":      Metrics.CommandErrors.Value(),
		"events_appended":     Metrics.EventsAppended.Value(),
		"balls_committed":     Metrics.BallsCommitted.Value(),
		"corrections_applied": Metrics.CorrectionsApplied.Value(),
		"disputes_raised":     Metrics.DisputesRaised.Value(),
		"disputes_resolved":   Metrics.DisputesResolved.Value(),
		"held_balls":          Metrics.HeldBalls.Value(),
		"active_matches":      Metrics.ActiveMatches.Value(),
		"socket_clients":      Metrics.SocketClients.Value(),
		"socket_drops":        Metrics.SocketDrops.Value(),
		"frames_sent":         Metrics.FramesSent.Value(),
		"inbox_overflows":     Metrics.InboxOverflows.Value(),
		"chain_breaks":        Metrics.ChainBreaks.Value(),
	}
}
