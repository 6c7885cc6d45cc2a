package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/store"
)

// replayBackend serves a canned history to Restore, filtered by cutoff the
// way a durable backend would.
type replayBackend struct {
	*store.MemoryBackend
	history []domain.TelemetryRecord
}

func (b *replayBackend) LoadTelemetrySince(cutoff time.Time) ([]domain.TelemetryRecord, error) {
	out := make([]domain.TelemetryRecord, 0, len(b.history))
	for _, r := range b.history {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func record(deviceID string, strategyType domain.StrategyType, success bool, latencyMS int64, errMsg string) domain.TelemetryRecord {
	return domain.TelemetryRecord{
		DeviceID: deviceID,
		Summary: domain.TaskSummary{
			TaskID:   "task",
			DeviceID: deviceID,
			TaskType: domain.TaskChat,
			Metadata: domain.TaskMetadata{OriginalSize: 1 << 20},
			DeviceCapabilities: domain.DeviceCapabilities{
				AvailableMemory: 4 << 20,
				ProcessingPower: domain.PowerMedium,
				BatteryLevel:    80,
				NetworkQuality:  domain.NetworkGood,
			},
		},
		Strategy:         domain.Strategy{Type: strategyType},
		ProcessingTimeMS: latencyMS,
		Success:          success,
		Error:            errMsg,
	}
}

func TestRecordAggregatesPerDevice(t *testing.T) {
	agg := NewAggregator(nil)

	agg.Record(record("dev-1", domain.StrategyProcessLocal, true, 100, ""))
	agg.Record(record("dev-1", domain.StrategyProcessLocal, true, 300, ""))
	agg.Record(record("dev-1", domain.StrategyProcessCloud, false, 800, "network unreachable"))

	device, ok := agg.Device("dev-1")
	require.True(t, ok)
	require.Equal(t, 3, device.TotalRequests)
	require.InDelta(t, 2.0/3.0, device.SuccessRate, 1e-9)
	require.InDelta(t, 400, device.AverageProcessingTime, 1e-9)
	require.Equal(t, 2, device.PreferredStrategies[domain.StrategyProcessLocal])
	require.Equal(t, 1, device.PreferredStrategies[domain.StrategyProcessCloud])
	require.Equal(t, []string{"network"}, device.ErrorPatterns)
	require.False(t, device.LastSeen.IsZero())
}

func TestRestoreRebuildsAggregatesFromBackend(t *testing.T) {
	now := time.Now()

	ancient := record("dev-1", domain.StrategyProcessLocal, true, 100, "")
	ancient.Timestamp = now.Add(-8 * 24 * time.Hour)

	succeeded := record("dev-1", domain.StrategyProcessLocal, true, 200, "")
	succeeded.Timestamp = now.Add(-time.Hour)

	failed := record("dev-1", domain.StrategyProcessCloud, false, 900, "network unreachable")
	failed.Timestamp = now.Add(-time.Minute)

	backend := &replayBackend{
		MemoryBackend: store.NewMemoryBackend(),
		history:       []domain.TelemetryRecord{ancient, succeeded, failed},
	}
	agg := NewAggregator(backend)
	require.NoError(t, agg.Restore())

	// The record outside the retention window stays behind.
	require.Equal(t, 2, agg.RecordCount())

	device, ok := agg.Device("dev-1")
	require.True(t, ok)
	require.Equal(t, 2, device.TotalRequests)
	require.InDelta(t, 0.5, device.SuccessRate, 1e-9)
	require.Equal(t, []string{"network"}, device.ErrorPatterns)
}

func TestDeviceReturnsIndependentCopy(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(record("dev-1", domain.StrategyHybrid, true, 50, ""))

	device, ok := agg.Device("dev-1")
	require.True(t, ok)
	device.PreferredStrategies[domain.StrategyDefer] = 99
	device.ErrorPatterns = append(device.ErrorPatterns, "tampered")

	fresh, _ := agg.Device("dev-1")
	require.Zero(t, fresh.PreferredStrategies[domain.StrategyDefer])
	require.Empty(t, fresh.ErrorPatterns)
}

func TestErrorClassificationFirstMatchWins(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"Rate_Limit exceeded for tenant", "rate_limit"},
		{"authentication token expired", "authentication"},
		{"network unreachable during upload", "network"},
		{"resource exhausted on node", "resource"},
		{"validation failed for field x", "validation"},
		{"policy denied the request", "policy"},
		{"disk exploded", "unknown"},
		// rate_limit precedes network in the category order.
		{"rate_limit caused by network congestion", "rate_limit"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, classifyError(tc.message), "message %q", tc.message)
	}
}

func TestErrorPatternsAreDeduplicated(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(record("dev-1", domain.StrategyProcessCloud, false, 10, "network timeout"))
	agg.Record(record("dev-1", domain.StrategyProcessCloud, false, 10, "network refused"))
	agg.Record(record("dev-1", domain.StrategyProcessCloud, false, 10, "validation error"))

	device, _ := agg.Device("dev-1")
	require.Equal(t, []string{"network", "validation"}, device.ErrorPatterns)
}

func TestPerformanceSamplesAreCapped(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 0; i < maxPerfSamples+25; i++ {
		agg.Record(record("dev-1", domain.StrategyProcessCloud, true, int64(i), ""))
	}

	device, _ := agg.Device("dev-1")
	require.Len(t, device.PerformanceMetrics.MemoryUsage, maxPerfSamples)
	require.Len(t, device.PerformanceMetrics.BatteryDrain, maxPerfSamples)
	require.Len(t, device.PerformanceMetrics.NetworkLatency, maxPerfSamples)
	// FIFO: the oldest latency samples were dropped.
	require.InDelta(t, 25, device.PerformanceMetrics.NetworkLatency[0], 1e-9)
}

func TestNetworkLatencySampledOnlyForRemoteStrategies(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(record("dev-1", domain.StrategyProcessLocal, true, 100, ""))
	agg.Record(record("dev-1", domain.StrategyCacheResult, true, 5, ""))
	agg.Record(record("dev-1", domain.StrategyHybrid, true, 200, ""))

	device, _ := agg.Device("dev-1")
	require.Len(t, device.PerformanceMetrics.NetworkLatency, 1)
	require.Len(t, device.PerformanceMetrics.MemoryUsage, 3)
}

func TestRecordCapDropsOldestRecords(t *testing.T) {
	agg := NewAggregator(nil)
	base := time.Now()
	for i := 0; i < maxRetainedRecords+10; i++ {
		r := record(fmt.Sprintf("dev-%d", i%7), domain.StrategyHybrid, true, 10, "")
		r.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
		agg.Record(r)
	}
	require.Equal(t, maxRetainedRecords, agg.RecordCount())
}

func TestPurgeExpiredDropsOldRecords(t *testing.T) {
	agg := NewAggregator(nil)

	old := record("dev-1", domain.StrategyHybrid, true, 10, "")
	old.Timestamp = time.Now().Add(-8 * 24 * time.Hour)
	agg.Record(old)
	agg.Record(record("dev-1", domain.StrategyHybrid, true, 10, ""))

	require.Equal(t, 1, agg.PurgeExpired())
	require.Equal(t, 1, agg.RecordCount())

	// The device aggregate is retained and converges on the next record.
	device, ok := agg.Device("dev-1")
	require.True(t, ok)
	require.Equal(t, 2, device.TotalRequests)

	agg.Record(record("dev-1", domain.StrategyHybrid, true, 10, ""))
	device, _ = agg.Device("dev-1")
	require.Equal(t, 2, device.TotalRequests)
}

func TestStatsAggregatesAcrossDevices(t *testing.T) {
	agg := NewAggregator(nil)

	agg.Record(record("dev-1", domain.StrategyProcessLocal, true, 100, ""))
	agg.Record(record("dev-2", domain.StrategyProcessCloud, true, 500, ""))
	agg.Record(record("dev-2", domain.StrategyProcessCloud, false, 900, "rate_limit hit"))

	stats := agg.Stats()
	require.Equal(t, 2, stats.TotalDevices)
	require.Equal(t, 3, stats.TotalRequests)
	require.InDelta(t, 2.0/3.0, stats.OverallSuccessRate, 1e-9)
	require.Equal(t, 1, stats.StrategyDistribution[domain.StrategyProcessLocal])
	require.Equal(t, 2, stats.StrategyDistribution[domain.StrategyProcessCloud])
	require.Equal(t, map[string]int{"rate_limit": 1}, stats.ErrorDistribution)
}

func TestStatsPercentilesUseFloorIndexing(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 1; i <= 10; i++ {
		agg.Record(record("dev-1", domain.StrategyHybrid, true, int64(i*100), ""))
	}

	stats := agg.Stats()
	// floor(10 * 0.95) = 9 -> the 10th sorted sample.
	require.InDelta(t, 1000, stats.PerformanceMetrics.P95ProcessingTimeMS, 1e-9)
	require.InDelta(t, 1000, stats.PerformanceMetrics.P99ProcessingTimeMS, 1e-9)

	empty := NewAggregator(nil)
	require.Zero(t, empty.Stats().PerformanceMetrics.P95ProcessingTimeMS)
}

func TestStatsExcludesFailedLatencies(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(record("dev-1", domain.StrategyHybrid, true, 100, ""))
	agg.Record(record("dev-1", domain.StrategyHybrid, false, 90000, "network down"))

	stats := agg.Stats()
	require.InDelta(t, 100, stats.PerformanceMetrics.P95ProcessingTimeMS, 1e-9)
}

func TestInsightsUnknownDevice(t *testing.T) {
	agg := NewAggregator(nil)

	insights := agg.Insights("ghost")
	require.Equal(t, "ghost", insights.DeviceID)
	require.Zero(t, insights.PerformanceScore)
	require.Equal(t, []string{"Insufficient data"}, insights.Issues)
	require.Equal(t, []string{"No telemetry data available"}, insights.Recommendations)
}

func TestInsightsHealthyDeviceScoresFull(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 0; i < 20; i++ {
		agg.Record(record("dev-1", domain.StrategyProcessLocal, true, 120, ""))
	}

	insights := agg.Insights("dev-1")
	require.InDelta(t, 100, insights.PerformanceScore, 1e-9)
	require.Empty(t, insights.Issues)
	require.Empty(t, insights.Recommendations)
}

func TestInsightsDeductions(t *testing.T) {
	agg := NewAggregator(nil)

	// 10 slow cloud requests, 3 of them failing: low success rate (-20),
	// slow average (-15), cloud-heavy (-10).
	for i := 0; i < 7; i++ {
		agg.Record(record("dev-1", domain.StrategyProcessCloud, true, 3000, ""))
	}
	for i := 0; i < 3; i++ {
		agg.Record(record("dev-1", domain.StrategyProcessCloud, false, 3000, "network down"))
	}

	insights := agg.Insights("dev-1")
	require.InDelta(t, 55, insights.PerformanceScore, 1e-9)
	require.Len(t, insights.Issues, 3)
	require.Len(t, insights.Recommendations, 3)
}

func TestResetWipesEverything(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(record("dev-1", domain.StrategyHybrid, true, 10, ""))

	agg.Reset()
	require.Zero(t, agg.RecordCount())
	_, ok := agg.Device("dev-1")
	require.False(t, ok)
	require.Empty(t, agg.Devices())
}
