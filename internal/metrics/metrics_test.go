package metrics

import (
	"math"
	"testing"
	"time"
)

func TestHistogram_Stats(t *testing.T) {
	h := NewHistogram(100)
	if got := h.Stats(); got != (LatencyStats{}) {
		t.Errorf("empty histogram stats = %+v", got)
	}

	for i := 1; i <= 5; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}
	s := h.Stats()
	if s.Count != 5 || s.Min != 1 || s.Max != 5 {
		t.Errorf("count/min/max = %d/%v/%v, want 5/1/5", s.Count, s.Min, s.Max)
	}
	if s.Mean != 3 || s.P50 != 3 {
		t.Errorf("mean/p50 = %v/%v, want 3/3", s.Mean, s.P50)
	}
	if math.Abs(s.P95-4.8) > 1e-9 {
		t.Errorf("p95 = %v, want 4.8", s.P95)
	}

	h.Reset()
	if h.Count() != 0 {
		t.Errorf("count after reset = %d", h.Count())
	}
}

func TestHistogram_Window(t *testing.T) {
	h := NewHistogram(10)
	for i := 0; i < 11; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}
	// 11 samples exceed the window; the oldest two are dropped.
	if h.Count() != 9 {
		t.Fatalf("count = %d, want 9", h.Count())
	}
	if got := h.Stats().Min; got != 2 {
		t.Errorf("min = %v, want 2", got)
	}
}

func TestRefreshMetrics(t *testing.T) {
	m := NewRefreshMetrics()
	m.RecordRefresh(10*time.Millisecond, OutcomeUpdated)
	m.RecordRefresh(20*time.Millisecond, OutcomeUpdated)
	m.RecordRefresh(time.Millisecond, OutcomeNoData)
	m.RecordRefresh(time.Millisecond, OutcomeFailed)
	m.RecordRefresh(time.Millisecond, OutcomeNotConfigured)
	m.RecordUnchanged()
	m.RecordThrottled()
	m.RecordThrottled()

	s := m.GetStats()
	if s.Updated != 2 || s.NoData != 1 || s.Failures != 1 || s.NotConfigured != 1 {
		t.Errorf("outcomes = %+v", s)
	}
	if s.Unchanged != 1 || s.Throttled != 2 {
		t.Errorf("unchanged/throttled = %d/%d", s.Unchanged, s.Throttled)
	}
	if s.Latency.Count != 5 {
		t.Errorf("latency samples = %d, want 5", s.Latency.Count)
	}
	if s.LogValue().Kind().String() != "Group" {
		t.Error("LogValue should be a group")
	}
}

func TestRefreshMetrics_Nil(t *testing.T) {
	var m *RefreshMetrics
	m.RecordRefresh(time.Second, OutcomeUpdated)
	m.RecordUnchanged()
	m.RecordThrottled()
}
