// Package metrics counts refresh outcomes for the long-running watcher.
package metrics

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// RefreshMetrics tracks refresh latency and outcomes. The zero value is not
// usable; call NewRefreshMetrics. A nil *RefreshMetrics ignores all records.
type RefreshMetrics struct {
	Latency *Histogram

	Updated       atomic.Uint64
	NoData        atomic.Uint64
	NotConfigured atomic.Uint64
	Failures      atomic.Uint64
	Unchanged     atomic.Uint64
	Throttled     atomic.Uint64

	startTime time.Time
}

// NewRefreshMetrics creates a metrics collector.
func NewRefreshMetrics() *RefreshMetrics {
	return &RefreshMetrics{
		Latency:   NewHistogram(1000),
		startTime: time.Now(),
	}
}

// Outcome classifies one refresh.
type Outcome int

const (
	OutcomeUpdated Outcome = iota
	OutcomeNoData
	OutcomeNotConfigured
	OutcomeFailed
)

// RecordRefresh records the duration and outcome of one refresh.
func (m *RefreshMetrics) RecordRefresh(d time.Duration, outcome Outcome) {
	if m == nil {
		return
	}
	m.Latency.Record(d)
	switch outcome {
	case OutcomeUpdated:
		m.Updated.Add(1)
	case OutcomeNoData:
		m.NoData.Add(1)
	case OutcomeNotConfigured:
		m.NotConfigured.Add(1)
	case OutcomeFailed:
		m.Failures.Add(1)
	}
}

// RecordUnchanged counts a file event skipped because the content fingerprint
// matched the last refresh.
func (m *RefreshMetrics) RecordUnchanged() {
	if m != nil {
		m.Unchanged.Add(1)
	}
}

// RecordThrottled counts a refresh deferred by the per-title rate limit.
func (m *RefreshMetrics) RecordThrottled() {
	if m != nil {
		m.Throttled.Add(1)
	}
}

// RefreshStats is a snapshot of RefreshMetrics.
type RefreshStats struct {
	Latency       LatencyStats `json:"latency"`
	Updated       uint64       `json:"updated"`
	NoData        uint64       `json:"no_data"`
	NotConfigured uint64       `json:"not_configured"`
	Failures      uint64       `json:"failures"`
	Unchanged     uint64       `json:"unchanged"`
	Throttled     uint64       `json:"throttled"`
	Uptime        string       `json:"uptime"`
}

// GetStats returns a snapshot of the current statistics.
func (m *RefreshMetrics) GetStats() *RefreshStats {
	return &RefreshStats{
		Latency:       m.Latency.Stats(),
		Updated:       m.Updated.Load(),
		NoData:        m.NoData.Load(),
		NotConfigured: m.NotConfigured.Load(),
		Failures:      m.Failures.Load(),
		Unchanged:     m.Unchanged.Load(),
		Throttled:     m.Throttled.Load(),
		Uptime:        time.Since(m.startTime).Round(time.Second).String(),
	}
}

// LogValue implements slog.LogValuer.
func (s *RefreshStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("updated", s.Updated),
		slog.Uint64("no_data", s.NoData),
		slog.Uint64("failures", s.Failures),
		slog.Uint64("unchanged", s.Unchanged),
		slog.Uint64("throttled", s.Throttled),
		slog.Float64("p95_ms", s.Latency.P95),
		slog.String("uptime", s.Uptime),
	)
}
