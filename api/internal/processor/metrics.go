package processor

import (
	"sync"
	"time"

	"receipt-ocr/api/internal/analysis"
)

// MetricsSnapshot is a point-in-time copy of the processor's counters.
// The means are running means folded in per processed receipt.
type MetricsSnapshot struct {
	TotalProcessed          int64                       `json:"totalProcessed"`
	StrategyCounts          map[analysis.Strategy]int64 `json:"strategyCounts"`
	AverageProcessingTimeMs float64                     `json:"averageProcessingTimeMs"`
	SuccessRate             float64                     `json:"successRate"`
	LastReset               time.Time                   `json:"lastReset"`
}

type metricsState struct {
	mu sync.Mutex
	s  MetricsSnapshot
}

func newMetricsState() *metricsState {
	return &metricsState{s: MetricsSnapshot{
		StrategyCounts: make(map[analysis.Strategy]int64),
		LastReset:      time.Now().UTC(),
	}}
}

// record folds one processed receipt into the running means using
// newMean = (oldMean*(n-1) + x) / n.
func (m *metricsState) record(strategy analysis.Strategy, elapsedMs int64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.TotalProcessed++
	m.s.StrategyCounts[strategy]++

	n := float64(m.s.TotalProcessed)
	m.s.AverageProcessingTimeMs = (m.s.AverageProcessingTimeMs*(n-1) + float64(elapsedMs)) / n

	hit := 0.0
	if success {
		hit = 1.0
	}
	m.s.SuccessRate = (m.s.SuccessRate*(n-1) + hit) / n
}

func (m *metricsState) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.s
	out.StrategyCounts = make(map[analysis.Strategy]int64, len(m.s.StrategyCounts))
	for k, v := range m.s.StrategyCounts {
		out.StrategyCounts[k] = v
	}
	return out
}

func (m *metricsState) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = MetricsSnapshot{
		StrategyCounts: make(map[analysis.Strategy]int64),
		LastReset:      time.Now().UTC(),
	}
}
