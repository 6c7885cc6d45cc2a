package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/executor"
	"github.com/aabboodi/edgehub/internal/policy"
	"github.com/aabboodi/edgehub/internal/strategy"
	"github.com/aabboodi/edgehub/internal/telemetry"
)

type allowAllValidator struct{}

func (allowAllValidator) ValidateRequest(ctx context.Context, summary domain.TaskSummary, deviceID, signature string) error {
	return nil
}

func (allowAllValidator) ValidatePolicyUpdate(ctx context.Context, deviceID string, policies []domain.Policy, signature string) error {
	return nil
}

type rejectingValidator struct{}

func (rejectingValidator) ValidateRequest(ctx context.Context, summary domain.TaskSummary, deviceID, signature string) error {
	return domain.Unauthenticated("request signature mismatch")
}

func (rejectingValidator) ValidatePolicyUpdate(ctx context.Context, deviceID string, policies []domain.Policy, signature string) error {
	return domain.Unauthenticated("request signature mismatch")
}

type stubExecutor struct {
	out executor.Output
	err error
}

func (s stubExecutor) Execute(ctx context.Context, summary domain.TaskSummary, strategy domain.Strategy) (executor.Output, error) {
	return s.out, s.err
}

func newOrchestrator(t *testing.T, validator SecurityValidator, executors executor.Registry) *Orchestrator {
	t.Helper()
	if executors == nil {
		executors = executor.DefaultRegistry()
	}
	orch := New(policy.NewStore(nil), strategy.NewEngine(), telemetry.NewAggregator(nil), validator, executors)
	require.NoError(t, orch.Initialize(context.Background()))
	return orch
}

func processRequest(taskType domain.TaskType, battery float64) ProcessRequest {
	return ProcessRequest{
		DeviceID: "dev-1",
		Summary: domain.TaskSummary{
			TaskID:            "task-1",
			DeviceID:          "dev-1",
			TaskType:          taskType,
			CompressedContext: "compressed payload",
			DeviceCapabilities: domain.DeviceCapabilities{
				AvailableMemory: 4 << 30,
				ProcessingPower: domain.PowerMedium,
				BatteryLevel:    battery,
				NetworkQuality:  domain.NetworkGood,
			},
		},
	}
}

func TestProcessRequiresInitialization(t *testing.T) {
	orch := New(policy.NewStore(nil), strategy.NewEngine(), telemetry.NewAggregator(nil), allowAllValidator{}, executor.DefaultRegistry())

	_, err := orch.Process(context.Background(), processRequest(domain.TaskChat, 80))
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeFailedPrecondition, appError.Code)
}

func TestProcessRejectsUnsupportedTaskType(t *testing.T) {
	orch := newOrchestrator(t, allowAllValidator{}, nil)

	req := processRequest("juggling", 80)
	_, err := orch.Process(context.Background(), req)
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnsupported, appError.Code)
}

func TestProcessBadSignatureRecordsFailureTelemetry(t *testing.T) {
	orch := newOrchestrator(t, rejectingValidator{}, nil)

	_, err := orch.Process(context.Background(), processRequest(domain.TaskChat, 80))
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnauthenticated, appError.Code)

	// Rejected requests still leave a failure record before the error is
	// returned.
	health := orch.CheckHealth(context.Background())
	require.Equal(t, 1, health.TelemetryRecords)

	device, found := orch.telemetry.Device("dev-1")
	require.True(t, found)
	require.Equal(t, 1, device.TotalRequests)
	require.Zero(t, device.SuccessRate)
}

func TestProcessInvalidTaskRecordsFailureTelemetry(t *testing.T) {
	orch := newOrchestrator(t, allowAllValidator{}, nil)

	missingID := processRequest(domain.TaskChat, 80)
	missingID.Summary.TaskID = ""
	_, err := orch.Process(context.Background(), missingID)
	require.Error(t, err)

	_, err = orch.Process(context.Background(), processRequest("juggling", 80))
	require.Error(t, err)

	health := orch.CheckHealth(context.Background())
	require.Equal(t, 2, health.TelemetryRecords)
}

func TestProcessLocalDecisionSkipsExecutor(t *testing.T) {
	orch := newOrchestrator(t, allowAllValidator{}, executor.Registry{})

	// Small chat context matches the seeded privacy policy.
	response, err := orch.Process(context.Background(), processRequest(domain.TaskChat, 80))
	require.NoError(t, err)
	require.Equal(t, domain.StrategyProcessLocal, response.Strategy.Type)
	require.Nil(t, response.Result)

	health := orch.CheckHealth(context.Background())
	require.Equal(t, 1, health.TelemetryRecords)
}

func TestProcessCloudDecisionDispatchesExecutor(t *testing.T) {
	stub := stubExecutor{out: executor.Output{
		Payload:    map[string]any{"label": "general"},
		TokensUsed: 42,
		Model:      "stub-model",
		Confidence: 0.9,
	}}
	orch := newOrchestrator(t, allowAllValidator{}, executor.Registry{
		domain.TaskClassification: stub,
	})

	// 15% battery triggers the seeded battery-conservation offload rule.
	response, err := orch.Process(context.Background(), processRequest(domain.TaskClassification, 15))
	require.NoError(t, err)
	require.Equal(t, domain.StrategyProcessCloud, response.Strategy.Type)
	require.NotNil(t, response.Result)
	require.Equal(t, "task-1", response.Result.TaskID)
	require.Equal(t, "stub-model", response.Result.ModelUsed)
	require.Equal(t, int64(42), response.Result.TokensUsed)
}

func TestProcessCloudFailureStillRecordsTelemetry(t *testing.T) {
	stub := stubExecutor{err: errors.New("network unreachable")}
	orch := newOrchestrator(t, allowAllValidator{}, executor.Registry{
		domain.TaskClassification: stub,
	})

	_, err := orch.Process(context.Background(), processRequest(domain.TaskClassification, 15))
	require.Error(t, err)
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInternal, appError.Code)

	status, statusErr := orch.Status(context.Background(), "dev-1")
	require.NoError(t, statusErr)
	require.NotNil(t, status.Telemetry)
	require.Equal(t, 1, status.Telemetry.TotalRequests)
	require.Zero(t, status.Telemetry.SuccessRate)
	require.Equal(t, []string{"network"}, status.Telemetry.ErrorPatterns)
}

func TestProcessCloudMissingExecutor(t *testing.T) {
	orch := newOrchestrator(t, allowAllValidator{}, executor.Registry{})

	_, err := orch.Process(context.Background(), processRequest(domain.TaskClassification, 15))
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnsupported, appError.Code)
}

func TestUpdatePoliciesAllOrNothing(t *testing.T) {
	orch := newOrchestrator(t, allowAllValidator{}, nil)

	valid := domain.Policy{
		ID:         "valid",
		Name:       "valid",
		ValidFrom:  time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour),
		Rules: []domain.Rule{{
			ID:     "r",
			Type:   domain.RuleRoute,
			Action: domain.RuleAction{Strategy: domain.StrategyProcessLocal},
		}},
	}
	invalid := valid
	invalid.ID = "invalid"
	invalid.Rules = nil

	err := orch.UpdatePolicies(context.Background(), "dev-1", []domain.Policy{valid, invalid}, "")
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, appError.Code)

	status, statusErr := orch.Status(context.Background(), "dev-1")
	require.NoError(t, statusErr)
	for _, p := range status.ActivePolicies {
		require.NotEqual(t, "valid", p.ID)
	}
}

func TestStatusUnknownDevice(t *testing.T) {
	orch := newOrchestrator(t, allowAllValidator{}, nil)

	status, err := orch.Status(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, "unknown", status.Status)
	require.Nil(t, status.Telemetry)
	require.Len(t, status.ActivePolicies, 3)
	require.Equal(t, staticGuidance, status.Recommendations)
}

func TestCheckHealthBeforeAndAfterInitialize(t *testing.T) {
	orch := New(policy.NewStore(nil), strategy.NewEngine(), telemetry.NewAggregator(nil), allowAllValidator{}, executor.DefaultRegistry())

	health := orch.CheckHealth(context.Background())
	require.Equal(t, "starting", health.Status)
	require.False(t, health.Initialized)

	require.NoError(t, orch.Initialize(context.Background()))
	health = orch.CheckHealth(context.Background())
	require.Equal(t, "ok", health.Status)
	require.True(t, health.Initialized)
	require.Equal(t, 3, health.GlobalPolicies)
}

func TestInsightsRequiresDeviceID(t *testing.T) {
	orch := newOrchestrator(t, allowAllValidator{}, nil)

	_, err := orch.Insights(context.Background(), "")
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, appError.Code)
}

func TestCloudTimeoutParameter(t *testing.T) {
	require.Equal(t, defaultCloudTimeout, cloudTimeout(domain.Strategy{}))
	require.Equal(t, 5*time.Second, cloudTimeout(domain.Strategy{Parameters: map[string]any{"timeout": 5}}))
	require.Equal(t, 5*time.Second, cloudTimeout(domain.Strategy{Parameters: map[string]any{"timeout": 5.0}}))
	require.Equal(t, defaultCloudTimeout, cloudTimeout(domain.Strategy{Parameters: map[string]any{"timeout": "soon"}}))
	require.Equal(t, defaultCloudTimeout, cloudTimeout(domain.Strategy{Parameters: map[string]any{"timeout": -3}}))
}
