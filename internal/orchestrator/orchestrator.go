// Package orchestrator coordinates the full offload pipeline: request
// validation, policy resolution, strategy selection, optional cloud
// execution, and telemetry capture.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/executor"
	"github.com/aabboodi/edgehub/internal/policy"
	"github.com/aabboodi/edgehub/internal/strategy"
	"github.com/aabboodi/edgehub/internal/telemetry"
)

const defaultCloudTimeout = 30 * time.Second

// SecurityValidator verifies the caller's signature before any pipeline
// work runs.
type SecurityValidator interface {
	ValidateRequest(ctx context.Context, summary domain.TaskSummary, deviceID, signature string) error
	ValidatePolicyUpdate(ctx context.Context, deviceID string, policies []domain.Policy, signature string) error
}

// ProcessRequest is one device task submission.
type ProcessRequest struct {
	DeviceID  string             `json:"device_id"`
	Summary   domain.TaskSummary `json:"summary"`
	Signature string             `json:"signature"`
}

// ProcessResponse always carries the chosen strategy. Result is set only
// when the strategy dispatched the task to a cloud executor.
type ProcessResponse struct {
	Strategy domain.Strategy          `json:"strategy"`
	Result   *domain.ProcessingResult `json:"result,omitempty"`
}

// UpdatePoliciesRequest replaces a device's full policy set.
type UpdatePoliciesRequest struct {
	DeviceID  string          `json:"device_id"`
	Policies  []domain.Policy `json:"policies"`
	Signature string          `json:"signature"`
}

// AddGlobalPolicyRequest upserts one fleet-wide policy.
type AddGlobalPolicyRequest struct {
	Policy domain.Policy `json:"policy"`
}

// DeviceRequest addresses a single device.
type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// DeviceStatus is the operator-facing view of one device.
type DeviceStatus struct {
	DeviceID        string                  `json:"device_id"`
	Status          string                  `json:"status"`
	ActivePolicies  []domain.Policy         `json:"active_policies"`
	Telemetry       *domain.DeviceTelemetry `json:"telemetry,omitempty"`
	Recommendations []string                `json:"recommendations"`
}

// Health reports component readiness and sizes.
type Health struct {
	Status              string    `json:"status"`
	Initialized         bool      `json:"initialized"`
	GlobalPolicies      int       `json:"global_policies"`
	DevicesWithPolicies int       `json:"devices_with_policies"`
	StrategyCacheSize   int       `json:"strategy_cache_size"`
	TelemetryRecords    int       `json:"telemetry_records"`
	Timestamp           time.Time `json:"timestamp"`
}

// Orchestrator owns the component graph. All methods are safe for
// concurrent use.
type Orchestrator struct {
	policies  *policy.Store
	engine    *strategy.Engine
	telemetry *telemetry.Aggregator
	validator SecurityValidator
	executors executor.Registry

	mu          sync.RWMutex
	initialized bool

	now func() time.Time
}

func New(policies *policy.Store, engine *strategy.Engine, agg *telemetry.Aggregator, validator SecurityValidator, executors executor.Registry) *Orchestrator {
	return &Orchestrator{
		policies:  policies,
		engine:    engine,
		telemetry: agg,
		validator: validator,
		executors: executors,
		now:       time.Now,
	}
}

// Initialize loads persisted state and seeds default policies. Until it
// succeeds every other operation fails with a precondition error.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.policies.Initialize(); err != nil {
		return fmt.Errorf("initialize policy store: %w", err)
	}
	// Telemetry history is best-effort: a restore failure never blocks
	// start-up.
	if err := o.telemetry.Restore(); err != nil {
		log.Printf("orchestrator: restore telemetry history failed: %v", err)
	}
	o.mu.Lock()
	o.initialized = true
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) IsInitialized() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.initialized
}

func (o *Orchestrator) requireInitialized() error {
	if !o.IsInitialized() {
		return domain.NotInitialized("orchestrator not initialized")
	}
	return nil
}

// Process runs the offload pipeline for one task. Every attempt leaves a
// best-effort telemetry record, including requests rejected before strategy
// selection and failed cloud executions; the original error is returned
// unchanged.
func (o *Orchestrator) Process(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	if err := o.admitProcess(ctx, req); err != nil {
		o.recordTelemetry(req, domain.Strategy{}, 0, false, err)
		return ProcessResponse{}, err
	}

	policies := o.policies.PoliciesFor(req.DeviceID)
	chosen := o.engine.Decide(req.Summary, policies, req.DeviceID)

	if chosen.Type != domain.StrategyProcessCloud {
		o.recordTelemetry(req, chosen, 0, true, nil)
		return ProcessResponse{Strategy: chosen}, nil
	}

	result, elapsed, err := o.executeCloud(ctx, req.Summary, chosen)
	o.recordTelemetry(req, chosen, elapsed, err == nil, err)
	if err != nil {
		return ProcessResponse{}, err
	}
	return ProcessResponse{Strategy: chosen, Result: result}, nil
}

// admitProcess runs the pre-pipeline gates: initialization, task shape, and
// the caller's signature.
func (o *Orchestrator) admitProcess(ctx context.Context, req ProcessRequest) error {
	if err := o.requireInitialized(); err != nil {
		return err
	}
	if req.Summary.TaskID == "" {
		return domain.InvalidArgument("task id is required")
	}
	if _, ok := domain.ValidTaskTypes[req.Summary.TaskType]; !ok {
		return domain.UnsupportedTaskType(fmt.Sprintf("unsupported task type %q", req.Summary.TaskType))
	}
	return o.validator.ValidateRequest(ctx, req.Summary, req.DeviceID, req.Signature)
}

func (o *Orchestrator) executeCloud(ctx context.Context, summary domain.TaskSummary, chosen domain.Strategy) (*domain.ProcessingResult, int64, error) {
	exec, ok := o.executors[summary.TaskType]
	if !ok {
		return nil, 0, domain.UnsupportedTaskType(fmt.Sprintf("no cloud executor for task type %q", summary.TaskType))
	}

	ctx, cancel := context.WithTimeout(ctx, cloudTimeout(chosen))
	defer cancel()

	start := o.now()
	out, err := exec.Execute(ctx, summary, chosen)
	elapsed := o.now().Sub(start).Milliseconds()
	if err != nil {
		return nil, elapsed, domain.Internal(fmt.Sprintf("cloud execution failed for task %s", summary.TaskID), err)
	}
	return &domain.ProcessingResult{
		TaskID:           summary.TaskID,
		Result:           out.Payload,
		ProcessingTimeMS: elapsed,
		TokensUsed:       out.TokensUsed,
		ModelUsed:        out.Model,
		Confidence:       out.Confidence,
	}, elapsed, nil
}

// cloudTimeout reads the strategy's "timeout" parameter in seconds,
// falling back to the default when absent or malformed.
func cloudTimeout(chosen domain.Strategy) time.Duration {
	raw, ok := chosen.Parameters["timeout"]
	if !ok {
		return defaultCloudTimeout
	}
	switch v := raw.(type) {
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	}
	return defaultCloudTimeout
}

func (o *Orchestrator) recordTelemetry(req ProcessRequest, chosen domain.Strategy, elapsedMS int64, success bool, execErr error) {
	record := domain.TelemetryRecord{
		DeviceID:         req.DeviceID,
		Summary:          req.Summary,
		Strategy:         chosen,
		ProcessingTimeMS: elapsedMS,
		Success:          success,
		Timestamp:        o.now(),
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}
	o.telemetry.Record(record)
}

// UpdatePolicies replaces a device's policy set after signature and
// policy validation. All-or-nothing.
func (o *Orchestrator) UpdatePolicies(ctx context.Context, deviceID string, policies []domain.Policy, signature string) error {
	if err := o.requireInitialized(); err != nil {
		return err
	}
	if deviceID == "" {
		return domain.InvalidArgument("device id is required")
	}
	if err := o.validator.ValidatePolicyUpdate(ctx, deviceID, policies, signature); err != nil {
		return err
	}
	return o.policies.UpdateDevicePolicies(deviceID, policies)
}

// AddGlobalPolicy upserts a fleet-wide policy.
func (o *Orchestrator) AddGlobalPolicy(ctx context.Context, p domain.Policy) error {
	if err := o.requireInitialized(); err != nil {
		return err
	}
	return o.policies.AddGlobalPolicy(p)
}

// Status assembles the operator view for one device.
func (o *Orchestrator) Status(ctx context.Context, deviceID string) (DeviceStatus, error) {
	if err := o.requireInitialized(); err != nil {
		return DeviceStatus{}, err
	}
	if deviceID == "" {
		return DeviceStatus{}, domain.InvalidArgument("device id is required")
	}

	status := DeviceStatus{
		DeviceID:        deviceID,
		Status:          "unknown",
		ActivePolicies:  o.policies.PoliciesFor(deviceID),
		Recommendations: append([]string{}, staticGuidance...),
	}
	if device, ok := o.telemetry.Device(deviceID); ok {
		status.Telemetry = &device
		status.Status = "active"
		insights := o.telemetry.Insights(deviceID)
		status.Recommendations = append(status.Recommendations, insights.Recommendations...)
	}
	return status, nil
}

// staticGuidance is always included in a device status response, ahead of
// any telemetry-derived recommendations.
var staticGuidance = []string{
	"Keep device policies current; expired policies are cleaned up automatically",
	"Report accurate battery and network state so routing rules can apply",
}

// Insights returns the scored health report for one device.
func (o *Orchestrator) Insights(ctx context.Context, deviceID string) (domain.DeviceInsights, error) {
	if err := o.requireInitialized(); err != nil {
		return domain.DeviceInsights{}, err
	}
	if deviceID == "" {
		return domain.DeviceInsights{}, domain.InvalidArgument("device id is required")
	}
	return o.telemetry.Insights(deviceID), nil
}

// Stats returns fleet-wide aggregates.
func (o *Orchestrator) Stats(ctx context.Context) (domain.TelemetryStats, error) {
	if err := o.requireInitialized(); err != nil {
		return domain.TelemetryStats{}, err
	}
	return o.telemetry.Stats(), nil
}

// Devices returns telemetry snapshots for every known device.
func (o *Orchestrator) Devices(ctx context.Context) ([]domain.DeviceTelemetry, error) {
	if err := o.requireInitialized(); err != nil {
		return nil, err
	}
	return o.telemetry.Devices(), nil
}

// CheckHealth reports component readiness without requiring
// initialization, so probes work during startup.
func (o *Orchestrator) CheckHealth(ctx context.Context) Health {
	globals, devices := o.policies.Counts()
	h := Health{
		Status:              "ok",
		Initialized:         o.IsInitialized(),
		GlobalPolicies:      globals,
		DevicesWithPolicies: devices,
		StrategyCacheSize:   o.engine.CacheSize(),
		TelemetryRecords:    o.telemetry.RecordCount(),
		Timestamp:           o.now().UTC(),
	}
	if !h.Initialized {
		h.Status = "starting"
	}
	return h
}

// Maintenance hooks driven by the scheduler.

func (o *Orchestrator) SweepStrategyCache() {
	if n := o.engine.SweepCache(); n > 0 {
		log.Printf("orchestrator: swept %d stale strategy cache entries", n)
	}
}

func (o *Orchestrator) PurgeTelemetry() {
	if n := o.telemetry.PurgeExpired(); n > 0 {
		log.Printf("orchestrator: purged %d expired telemetry records", n)
	}
}

func (o *Orchestrator) CleanupPolicies() {
	if n := o.policies.CleanupExpired(); n > 0 {
		log.Printf("orchestrator: removed %d expired policies", n)
	}
}

func (o *Orchestrator) LogStats() {
	o.telemetry.LogStats()
}
