package domain

import "time"

// TaskType identifies the workload class of an offloaded task.
type TaskType string

const (
	TaskChat           TaskType = "chat"
	TaskClassification TaskType = "classification"
	TaskModeration     TaskType = "moderation"
	TaskRecommendation TaskType = "recommendation"
)

var ValidTaskTypes = map[TaskType]struct{}{
	TaskChat:           {},
	TaskClassification: {},
	TaskModeration:     {},
	TaskRecommendation: {},
}

// ProcessingPower is the device's compute tier.
type ProcessingPower string

const (
	PowerLow    ProcessingPower = "low"
	PowerMedium ProcessingPower = "medium"
	PowerHigh   ProcessingPower = "high"
)

var ValidProcessingPowers = map[ProcessingPower]struct{}{
	PowerLow:    {},
	PowerMedium: {},
	PowerHigh:   {},
}

// PowerOrdinal ranks processing power tiers so capability filters can
// compare them. Unknown tiers rank below low.
func PowerOrdinal(p ProcessingPower) int {
	switch p {
	case PowerLow:
		return 1
	case PowerMedium:
		return 2
	case PowerHigh:
		return 3
	default:
		return 0
	}
}

type NetworkQuality string

const (
	NetworkPoor      NetworkQuality = "poor"
	NetworkGood      NetworkQuality = "good"
	NetworkExcellent NetworkQuality = "excellent"
)

var ValidNetworkQualities = map[NetworkQuality]struct{}{
	NetworkPoor:      {},
	NetworkGood:      {},
	NetworkExcellent: {},
}

// StrategyType is the closed set of processing strategies the engine can
// pick. It doubles as the key into the cost/latency/privacy tables, so any
// switch over it must cover every member.
type StrategyType string

const (
	StrategyProcessLocal StrategyType = "process_local"
	StrategyProcessCloud StrategyType = "process_cloud"
	StrategyHybrid       StrategyType = "hybrid"
	StrategyCacheResult  StrategyType = "cache_result"
	StrategyDefer        StrategyType = "defer"
)

var ValidStrategyTypes = map[StrategyType]struct{}{
	StrategyProcessLocal: {},
	StrategyProcessCloud: {},
	StrategyHybrid:       {},
	StrategyCacheResult:  {},
	StrategyDefer:        {},
}

type RuleType string

const (
	RuleRoute RuleType = "route"
	RuleLimit RuleType = "limit"
	RuleCache RuleType = "cache"
	RuleDefer RuleType = "defer"
	RuleDeny  RuleType = "deny"
)

var ValidRuleTypes = map[RuleType]struct{}{
	RuleRoute: {},
	RuleLimit: {},
	RuleCache: {},
	RuleDefer: {},
	RuleDeny:  {},
}

type PrivacyLevel string

const (
	PrivacyLow    PrivacyLevel = "low"
	PrivacyMedium PrivacyLevel = "medium"
	PrivacyHigh   PrivacyLevel = "high"
)

// DeviceCapabilities is the live device-state snapshot attached to every
// task summary.
type DeviceCapabilities struct {
	AvailableMemory int64           `json:"available_memory"`
	ProcessingPower ProcessingPower `json:"processing_power"`
	BatteryLevel    float64         `json:"battery_level"`
	NetworkQuality  NetworkQuality  `json:"network_quality"`
}

type TaskMetadata struct {
	OriginalSize     int64     `json:"original_size"`
	CompressionRatio float64   `json:"compression_ratio"`
	Priority         string    `json:"priority"`
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id,omitempty"`
	UserTier         string    `json:"user_tier,omitempty"`
}

// TaskSummary is a compact, pre-compressed description of a pending unit of
// work submitted by an edge device. Ephemeral, created per request.
type TaskSummary struct {
	TaskID             string             `json:"task_id"`
	DeviceID           string             `json:"device_id"`
	TaskType           TaskType           `json:"task_type"`
	CompressedContext  string             `json:"compressed_context"`
	Query              string             `json:"query"`
	Metadata           TaskMetadata       `json:"metadata"`
	DeviceCapabilities DeviceCapabilities `json:"device_capabilities"`
}

type CapabilityFilter struct {
	MinMemory          int64           `json:"min_memory,omitempty"`
	MinProcessingPower ProcessingPower `json:"min_processing_power,omitempty"`
	MinBatteryLevel    float64         `json:"min_battery_level,omitempty"`
}

type DeviceFilters struct {
	DeviceTypes  []string         `json:"device_types,omitempty"`
	Capabilities CapabilityFilter `json:"capabilities"`
	Regions      []string         `json:"regions,omitempty"`
}

// Range bounds a numeric rule condition. A nil bound is unconstrained.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// TimeWindow is an "HH:MM" to "HH:MM" window. Start after End means the
// window wraps past midnight.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type RuleCondition struct {
	TaskTypes      []TaskType       `json:"task_types,omitempty"`
	ContextSize    *Range           `json:"context_size,omitempty"`
	DeviceBattery  *Range           `json:"device_battery,omitempty"`
	NetworkQuality []NetworkQuality `json:"network_quality,omitempty"`
	TimeOfDay      *TimeWindow      `json:"time_of_day,omitempty"`
	UserTier       []string         `json:"user_tier,omitempty"`
}

type RuleAction struct {
	Strategy   StrategyType   `json:"strategy"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Message    string         `json:"message,omitempty"`
}

type Rule struct {
	ID        string        `json:"id"`
	Type      RuleType      `json:"type"`
	Priority  int           `json:"priority"`
	Condition RuleCondition `json:"condition"`
	Action    RuleAction    `json:"action"`
}

// Policy is a versioned, signed, time-bounded rule set. Global policies
// apply to every device; device policies are pushed per device id.
type Policy struct {
	ID            string        `json:"id"`
	Version       string        `json:"version"`
	Name          string        `json:"name"`
	DeviceFilters DeviceFilters `json:"device_filters"`
	Rules         []Rule        `json:"rules"`
	ValidFrom     time.Time     `json:"valid_from"`
	ValidUntil    time.Time     `json:"valid_until"`
	Signature     string        `json:"signature"`
}

// MaxRulePriority is the sort key for policy ordering.
func (p Policy) MaxRulePriority() int {
	max := 0
	for i, rule := range p.Rules {
		if i == 0 || rule.Priority > max {
			max = rule.Priority
		}
	}
	return max
}

type StrategyMetadata struct {
	Confidence       float64      `json:"confidence"`
	EstimatedCost    float64      `json:"estimated_cost"`
	EstimatedLatency float64      `json:"estimated_latency_ms"`
	PrivacyLevel     PrivacyLevel `json:"privacy_level"`
}

// Strategy is the engine's decision on where and how to execute a task.
type Strategy struct {
	Type       StrategyType     `json:"type"`
	Reasoning  string           `json:"reasoning"`
	Parameters map[string]any   `json:"parameters,omitempty"`
	Metadata   StrategyMetadata `json:"metadata"`
}

// ProcessingResult wraps a cloud executor's output. Produced only when the
// chosen strategy is process_cloud.
type ProcessingResult struct {
	TaskID           string         `json:"task_id"`
	Result           any            `json:"result"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	TokensUsed       int64          `json:"tokens_used"`
	ModelUsed        string         `json:"model_used"`
	Confidence       float64        `json:"confidence"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// TelemetryRecord is one per-request outcome. Append-only.
type TelemetryRecord struct {
	DeviceID         string      `json:"device_id"`
	Summary          TaskSummary `json:"summary"`
	Strategy         Strategy    `json:"strategy"`
	ProcessingTimeMS int64       `json:"processing_time_ms"`
	Success          bool        `json:"success"`
	Error            string      `json:"error,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
}

type PerformanceMetrics struct {
	MemoryUsage    []float64 `json:"memory_usage"`
	BatteryDrain   []float64 `json:"battery_drain"`
	NetworkLatency []float64 `json:"network_latency"`
}

// DeviceTelemetry is the per-device aggregate mutated on every recorded
// outcome. Never deleted except via a full data reset.
type DeviceTelemetry struct {
	DeviceID              string               `json:"device_id"`
	TotalRequests         int                  `json:"total_requests"`
	SuccessRate           float64              `json:"success_rate"`
	AverageProcessingTime float64              `json:"average_processing_time_ms"`
	PreferredStrategies   map[StrategyType]int `json:"preferred_strategies"`
	ErrorPatterns         []string             `json:"error_patterns"`
	LastSeen              time.Time            `json:"last_seen"`
	PerformanceMetrics    PerformanceMetrics   `json:"performance_metrics"`
}

type PercentileMetrics struct {
	P95ProcessingTimeMS float64 `json:"p95_processing_time_ms"`
	P99ProcessingTimeMS float64 `json:"p99_processing_time_ms"`
}

type TelemetryStats struct {
	TotalDevices         int                  `json:"total_devices"`
	TotalRequests        int                  `json:"total_requests"`
	OverallSuccessRate   float64              `json:"overall_success_rate"`
	StrategyDistribution map[StrategyType]int `json:"strategy_distribution"`
	ErrorDistribution    map[string]int       `json:"error_distribution"`
	PerformanceMetrics   PercentileMetrics    `json:"performance_metrics"`
}

type DeviceInsights struct {
	DeviceID         string   `json:"device_id"`
	PerformanceScore float64  `json:"performance_score"`
	Issues           []string `json:"issues"`
	Recommendations  []string `json:"recommendations"`
}
