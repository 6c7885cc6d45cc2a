package telemetry

import (
	"log"
	"math"
	"sort"

	"github.com/aabboodi/edgehub/internal/domain"
)

// Stats aggregates the retained records across every device.
func (a *Aggregator) Stats() domain.TelemetryStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := domain.TelemetryStats{
		TotalDevices:         len(a.devices),
		TotalRequests:        len(a.records),
		StrategyDistribution: map[domain.StrategyType]int{},
		ErrorDistribution:    map[string]int{},
	}

	successes := 0
	var successLatencies []float64
	for _, record := range a.records {
		stats.StrategyDistribution[record.Strategy.Type]++
		if record.Success {
			successes++
			successLatencies = append(successLatencies, float64(record.ProcessingTimeMS))
		} else if record.Error != "" {
			stats.ErrorDistribution[classifyError(record.Error)]++
		}
	}
	if len(a.records) > 0 {
		stats.OverallSuccessRate = float64(successes) / float64(len(a.records))
	}

	sort.Float64s(successLatencies)
	stats.PerformanceMetrics = domain.PercentileMetrics{
		P95ProcessingTimeMS: percentile(successLatencies, 0.95),
		P99ProcessingTimeMS: percentile(successLatencies, 0.99),
	}
	return stats
}

// percentile indexes the ascending-sorted values at floor(n x p), 0 when
// the slice is empty.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	index := int(math.Floor(float64(n) * p))
	if index >= n {
		index = n - 1
	}
	return sorted[index]
}

// LogStats writes the periodic aggregate line emitted by the maintenance
// scheduler.
func (a *Aggregator) LogStats() {
	stats := a.Stats()
	log.Printf("telemetry: devices=%d requests=%d success_rate=%.3f p95_ms=%.0f p99_ms=%.0f",
		stats.TotalDevices,
		stats.TotalRequests,
		stats.OverallSuccessRate,
		stats.PerformanceMetrics.P95ProcessingTimeMS,
		stats.PerformanceMetrics.P99ProcessingTimeMS,
	)
}
