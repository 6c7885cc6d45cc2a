package telemetry

import "github.com/aabboodi/edgehub/internal/domain"

// Insights scores a device's operational health. The score starts at 100
// and each detected problem deducts a fixed amount alongside a matching
// human-readable issue and recommendation.
func (a *Aggregator) Insights(deviceID string) domain.DeviceInsights {
	a.mu.Lock()
	device, ok := a.devices[deviceID]
	if !ok {
		a.mu.Unlock()
		return domain.DeviceInsights{
			DeviceID:         deviceID,
			PerformanceScore: 0,
			Issues:           []string{"Insufficient data"},
			Recommendations:  []string{"No telemetry data available"},
		}
	}
	snapshot := cloneDevice(device)
	a.mu.Unlock()

	insights := domain.DeviceInsights{
		DeviceID:         deviceID,
		PerformanceScore: 100,
		Issues:           []string{},
		Recommendations:  []string{},
	}

	if snapshot.SuccessRate < 0.95 {
		insights.PerformanceScore -= 20
		insights.Issues = append(insights.Issues, "Low success rate")
		insights.Recommendations = append(insights.Recommendations, "Investigate recurring processing errors for this device")
	}
	if snapshot.AverageProcessingTime > 2000 {
		insights.PerformanceScore -= 15
		insights.Issues = append(insights.Issues, "High average processing time")
		insights.Recommendations = append(insights.Recommendations, "Route heavy tasks to cloud processing or reduce context size")
	}

	if snapshot.TotalRequests > 0 {
		cloudRatio := float64(snapshot.PreferredStrategies[domain.StrategyProcessCloud]) / float64(snapshot.TotalRequests)
		if cloudRatio > 0.8 {
			insights.PerformanceScore -= 10
			insights.Issues = append(insights.Issues, "Heavy reliance on cloud processing")
			insights.Recommendations = append(insights.Recommendations, "Review policies to allow more local processing when the device can afford it")
		}
	}
	if len(snapshot.ErrorPatterns) > 5 {
		insights.PerformanceScore -= 10
		insights.Issues = append(insights.Issues, "Diverse error patterns")
		insights.Recommendations = append(insights.Recommendations, "Audit the device's error log; failures span many categories")
	}
	if mean(snapshot.PerformanceMetrics.MemoryUsage) > 0.8 {
		insights.PerformanceScore -= 10
		insights.Issues = append(insights.Issues, "High memory pressure")
		insights.Recommendations = append(insights.Recommendations, "Increase compression or offload memory-heavy tasks")
	}
	if mean(snapshot.PerformanceMetrics.BatteryDrain) > 0.1 {
		insights.PerformanceScore -= 10
		insights.Issues = append(insights.Issues, "High battery drain")
		insights.Recommendations = append(insights.Recommendations, "Prefer cloud or deferred processing to preserve battery")
	}

	return insights
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, sample := range samples {
		sum += sample
	}
	return sum / float64(len(samples))
}
