package telemetry

import (
	"log"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/store"
)

const (
	maxRetainedRecords = 10000
	retentionWindow    = 7 * 24 * time.Hour
	maxPerfSamples     = 100
)

// errorCategories is the ordered substring classifier for failure messages.
// First match wins; the order is part of the contract even when a message
// matches several substrings.
var errorCategories = []string{
	"rate_limit",
	"authentication",
	"network",
	"resource",
	"validation",
	"policy",
}

const errorCategoryUnknown = "unknown"

// Aggregator records per-request outcomes and derives per-device health.
// All state is in memory; the optional backend receives a best-effort
// durable copy of each record.
type Aggregator struct {
	mu      sync.Mutex
	records []domain.TelemetryRecord
	devices map[string]*domain.DeviceTelemetry
	backend store.Backend

	now func() time.Time
}

func NewAggregator(backend store.Backend) *Aggregator {
	if backend == nil {
		backend = store.NewMemoryBackend()
	}
	return &Aggregator{
		devices: map[string]*domain.DeviceTelemetry{},
		backend: backend,
		now:     time.Now,
	}
}

// Restore replaces the in-memory state with the backend's records from the
// retention window, replaying each into the device aggregates. Used once at
// start-up so a durable deployment keeps its recent history across restarts.
func (a *Aggregator) Restore() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	restored, err := a.backend.LoadTelemetrySince(a.now().Add(-retentionWindow))
	if err != nil {
		return err
	}

	a.records = restored
	a.devices = map[string]*domain.DeviceTelemetry{}
	if len(a.records) > maxRetainedRecords {
		a.dropOldestLocked(len(a.records) - maxRetainedRecords)
	}
	for _, record := range a.records {
		a.updateDeviceLocked(record)
	}
	return nil
}

// Record appends an outcome and updates the device aggregate. It never
// fails: any internal error is logged and swallowed so telemetry can never
// break the request path.
func (a *Aggregator) Record(record domain.TelemetryRecord) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("telemetry: record panic device=%s: %v", record.DeviceID, recovered)
		}
	}()

	a.mu.Lock()
	defer a.mu.Unlock()

	if record.Timestamp.IsZero() {
		record.Timestamp = a.now()
	}

	a.records = append(a.records, record)
	if len(a.records) > maxRetainedRecords {
		a.dropOldestLocked(len(a.records) - maxRetainedRecords)
	}

	a.updateDeviceLocked(record)

	if err := a.backend.AppendTelemetry(record); err != nil {
		log.Printf("telemetry: persist record device=%s failed: %v", record.DeviceID, err)
	}
}

// dropOldestLocked removes n records, oldest-by-timestamp first.
func (a *Aggregator) dropOldestLocked(n int) {
	sort.SliceStable(a.records, func(i, j int) bool {
		return a.records[i].Timestamp.Before(a.records[j].Timestamp)
	})
	a.records = a.records[n:]
}

func (a *Aggregator) updateDeviceLocked(record domain.TelemetryRecord) {
	device, ok := a.devices[record.DeviceID]
	if !ok {
		device = &domain.DeviceTelemetry{
			DeviceID:            record.DeviceID,
			PreferredStrategies: map[domain.StrategyType]int{},
			ErrorPatterns:       []string{},
		}
		a.devices[record.DeviceID] = device
	}

	// Success rate and average latency are recomputed from the retained
	// records each time; fidelity over micro-efficiency.
	total, successes := 0, 0
	var latencySum float64
	for _, retained := range a.records {
		if retained.DeviceID != record.DeviceID {
			continue
		}
		total++
		if retained.Success {
			successes++
		}
		latencySum += float64(retained.ProcessingTimeMS)
	}
	device.TotalRequests = total
	if total > 0 {
		device.SuccessRate = float64(successes) / float64(total)
		device.AverageProcessingTime = latencySum / float64(total)
	}

	device.PreferredStrategies[record.Strategy.Type]++
	device.LastSeen = record.Timestamp

	if !record.Success && record.Error != "" {
		category := classifyError(record.Error)
		if !slices.Contains(device.ErrorPatterns, category) {
			device.ErrorPatterns = append(device.ErrorPatterns, category)
		}
	}

	a.samplePerformanceLocked(device, record)
}

// samplePerformanceLocked derives simulated resource samples from the
// device snapshot attached to the request. Samples are FIFO-capped.
func (a *Aggregator) samplePerformanceLocked(device *domain.DeviceTelemetry, record domain.TelemetryRecord) {
	caps := record.Summary.DeviceCapabilities

	memoryUsage := 0.0
	if caps.AvailableMemory > 0 {
		memoryUsage = math.Min(1, float64(record.Summary.Metadata.OriginalSize)/float64(caps.AvailableMemory))
	}

	drain := batteryDrainPerRequest(record.Strategy.Type) * (1 + float64(record.ProcessingTimeMS)/1000)

	perf := &device.PerformanceMetrics
	perf.MemoryUsage = appendCapped(perf.MemoryUsage, memoryUsage)
	perf.BatteryDrain = appendCapped(perf.BatteryDrain, drain)
	if record.Strategy.Type == domain.StrategyProcessCloud || record.Strategy.Type == domain.StrategyHybrid {
		perf.NetworkLatency = appendCapped(perf.NetworkLatency, float64(record.ProcessingTimeMS))
	}
}

// batteryDrainPerRequest approximates battery cost by where the work ran:
// local computation drains most, cache/defer barely at all.
func batteryDrainPerRequest(t domain.StrategyType) float64 {
	switch t {
	case domain.StrategyProcessLocal:
		return 0.08
	case domain.StrategyHybrid:
		return 0.04
	case domain.StrategyProcessCloud:
		return 0.02
	case domain.StrategyCacheResult:
		return 0.005
	case domain.StrategyDefer:
		return 0.001
	default:
		return 0.02
	}
}

func appendCapped(samples []float64, value float64) []float64 {
	samples = append(samples, value)
	if len(samples) > maxPerfSamples {
		samples = samples[len(samples)-maxPerfSamples:]
	}
	return samples
}

func classifyError(message string) string {
	lowered := strings.ToLower(message)
	for _, category := range errorCategories {
		if strings.Contains(lowered, category) {
			return category
		}
	}
	return errorCategoryUnknown
}

// Device returns a copy of a device's aggregate.
func (a *Aggregator) Device(deviceID string) (domain.DeviceTelemetry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	device, ok := a.devices[deviceID]
	if !ok {
		return domain.DeviceTelemetry{}, false
	}
	return cloneDevice(device), true
}

// Devices returns copies of every device aggregate, ordered by device id.
func (a *Aggregator) Devices() []domain.DeviceTelemetry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.DeviceTelemetry, 0, len(a.devices))
	for _, device := range a.devices {
		out = append(out, cloneDevice(device))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func cloneDevice(device *domain.DeviceTelemetry) domain.DeviceTelemetry {
	out := *device
	out.PreferredStrategies = make(map[domain.StrategyType]int, len(device.PreferredStrategies))
	for key, value := range device.PreferredStrategies {
		out.PreferredStrategies[key] = value
	}
	out.ErrorPatterns = append([]string{}, device.ErrorPatterns...)
	out.PerformanceMetrics.MemoryUsage = append([]float64{}, device.PerformanceMetrics.MemoryUsage...)
	out.PerformanceMetrics.BatteryDrain = append([]float64{}, device.PerformanceMetrics.BatteryDrain...)
	out.PerformanceMetrics.NetworkLatency = append([]float64{}, device.PerformanceMetrics.NetworkLatency...)
	return out
}

// RecordCount reports the retained record count for health reporting.
func (a *Aggregator) RecordCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// PurgeExpired drops records older than the retention window and returns
// how many were removed. Device aggregates are left as-is; they converge on
// subsequent records.
func (a *Aggregator) PurgeExpired() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-retentionWindow)
	kept := a.records[:0]
	removed := 0
	for _, record := range a.records {
		if record.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	a.records = kept
	return removed
}

// Reset wipes all telemetry state. The only path that deletes device
// aggregates.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = nil
	a.devices = map[string]*domain.DeviceTelemetry{}
}
