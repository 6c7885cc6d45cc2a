package policy

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/store"
)

func testPolicy(id string, priority int) domain.Policy {
	now := time.Now()
	return domain.Policy{
		ID:         id,
		Version:    "1.0.0",
		Name:       "Policy " + id,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
		Signature:  "test",
		Rules: []domain.Rule{
			{
				ID:       id + "-rule",
				Type:     domain.RuleRoute,
				Priority: priority,
				Action:   domain.RuleAction{Strategy: domain.StrategyProcessLocal},
			},
		},
	}
}

func newInitializedStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(store.NewMemoryBackend())
	require.NoError(t, s.Initialize())
	return s
}

func TestInitializeSeedsDefaults(t *testing.T) {
	s := newInitializedStore(t)

	globals, devices := s.Counts()
	require.Equal(t, 3, globals)
	require.Equal(t, 0, devices)

	policies := s.PoliciesFor("any-device")
	require.Len(t, policies, 3)
	// Privacy protection carries the highest rule priority and sorts first.
	require.Equal(t, DefaultPrivacyPolicyID, policies[0].ID)
}

func TestPoliciesForSortsByMaxRulePriority(t *testing.T) {
	s := newInitializedStore(t)

	high := testPolicy("device-high", 500)
	low := testPolicy("device-low", 10)
	require.NoError(t, s.UpdateDevicePolicies("dev-1", []domain.Policy{low, high}))

	policies := s.PoliciesFor("dev-1")
	require.Len(t, policies, 5)
	require.Equal(t, "device-high", policies[0].ID)

	// Another device only sees the globals.
	require.Len(t, s.PoliciesFor("dev-2"), 3)
}

func TestPoliciesForFiltersValidityWindow(t *testing.T) {
	s := newInitializedStore(t)

	expired := testPolicy("expired", 50)
	expired.ValidFrom = time.Now().Add(-2 * time.Hour)
	expired.ValidUntil = time.Now().Add(-time.Hour)

	future := testPolicy("future", 50)
	future.ValidFrom = time.Now().Add(time.Hour)
	future.ValidUntil = time.Now().Add(2 * time.Hour)

	active := testPolicy("active", 50)

	require.NoError(t, s.UpdateDevicePolicies("dev-1", []domain.Policy{expired, future, active}))

	policies := s.PoliciesFor("dev-1")
	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	require.Contains(t, ids, "active")
	require.NotContains(t, ids, "expired")
	require.NotContains(t, ids, "future")
}

func TestUpdateDevicePoliciesIsAllOrNothing(t *testing.T) {
	s := newInitializedStore(t)

	require.NoError(t, s.UpdateDevicePolicies("dev-1", []domain.Policy{testPolicy("keep", 10)}))

	invalid := testPolicy("broken", 10)
	invalid.Rules[0].Action.Strategy = "teleport"
	err := s.UpdateDevicePolicies("dev-1", []domain.Policy{testPolicy("ok", 10), invalid})
	require.Error(t, err)

	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, appError.Code)

	// The previously stored set survives untouched.
	policies := s.PoliciesFor("dev-1")
	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	require.Contains(t, ids, "keep")
	require.NotContains(t, ids, "ok")
}

func TestUpdateDevicePoliciesReplacesWholeSet(t *testing.T) {
	s := newInitializedStore(t)

	require.NoError(t, s.UpdateDevicePolicies("dev-1", []domain.Policy{
		testPolicy("first", 10),
		testPolicy("second", 20),
	}))
	require.NoError(t, s.UpdateDevicePolicies("dev-1", []domain.Policy{testPolicy("third", 30)}))

	policies := s.PoliciesFor("dev-1")
	require.Len(t, policies, 4)
	for _, p := range policies {
		require.NotEqual(t, "first", p.ID)
		require.NotEqual(t, "second", p.ID)
	}
}

func TestAddGlobalPolicyUpsertsByID(t *testing.T) {
	s := newInitializedStore(t)

	p := testPolicy("custom-global", 40)
	require.NoError(t, s.AddGlobalPolicy(p))

	p.Name = "Replaced"
	require.NoError(t, s.AddGlobalPolicy(p))

	globals, _ := s.Counts()
	require.Equal(t, 4, globals)

	for _, got := range s.PoliciesFor("dev-1") {
		if got.ID == "custom-global" {
			require.Equal(t, "Replaced", got.Name)
			return
		}
	}
	t.Fatalf("custom-global not returned")
}

func TestPoliciesForBreaksGlobalTiesByInsertionOrder(t *testing.T) {
	s := newInitializedStore(t)

	require.NoError(t, s.AddGlobalPolicy(testPolicy("tie-a", 500)))
	require.NoError(t, s.AddGlobalPolicy(testPolicy("tie-b", 500)))

	for i := 0; i < 50; i++ {
		policies := s.PoliciesFor("dev-1")
		require.Equal(t, "tie-a", policies[0].ID)
		require.Equal(t, "tie-b", policies[1].ID)
	}
}

func TestValidateRejectsMalformedPolicies(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Policy)
	}{
		{"missing id", func(p *domain.Policy) { p.ID = "" }},
		{"missing name", func(p *domain.Policy) { p.Name = "" }},
		{"no rules", func(p *domain.Policy) { p.Rules = nil }},
		{"inverted window", func(p *domain.Policy) {
			p.ValidFrom, p.ValidUntil = p.ValidUntil, p.ValidFrom
		}},
		{"unknown rule type", func(p *domain.Policy) { p.Rules[0].Type = "mystery" }},
		{"unknown strategy", func(p *domain.Policy) { p.Rules[0].Action.Strategy = "teleport" }},
		{"unknown task type", func(p *domain.Policy) {
			p.Rules[0].Condition.TaskTypes = []domain.TaskType{"juggling"}
		}},
		{"bad time window", func(p *domain.Policy) {
			p.Rules[0].Condition.TimeOfDay = &domain.TimeWindow{Start: "25:00", End: "06:00"}
		}},
		{"unknown min power", func(p *domain.Policy) {
			p.DeviceFilters.Capabilities.MinProcessingPower = "quantum"
		}},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testPolicy(fmt.Sprintf("case-%d", i), 10)
			tc.mutate(&p)
			err := ValidatePolicy(p)
			require.Error(t, err)
			appError, ok := domain.AsAppError(err)
			require.True(t, ok)
			require.Equal(t, domain.CodeInvalidArgument, appError.Code)
		})
	}
}

func TestCleanupExpiredRemovesPoliciesAndEmptyDevices(t *testing.T) {
	s := newInitializedStore(t)

	expired := testPolicy("doomed", 10)
	expired.ValidUntil = time.Now().Add(time.Millisecond)
	require.NoError(t, s.UpdateDevicePolicies("dev-1", []domain.Policy{expired}))

	mixed := testPolicy("survivor", 10)
	doomed := testPolicy("doomed-2", 10)
	doomed.ValidUntil = time.Now().Add(time.Millisecond)
	require.NoError(t, s.UpdateDevicePolicies("dev-2", []domain.Policy{mixed, doomed}))

	s.now = func() time.Time { return time.Now().Add(time.Minute) }
	removed := s.CleanupExpired()
	require.Equal(t, 2, removed)

	s.now = time.Now
	_, devices := s.Counts()
	require.Equal(t, 1, devices)
	require.Len(t, s.PoliciesFor("dev-2"), 4)
}

func TestReinitializeReseedsDefaults(t *testing.T) {
	backend := store.NewMemoryBackend()

	first := NewStore(backend)
	require.NoError(t, first.Initialize())

	replacement := testPolicy(DefaultBatteryPolicyID, 100)
	replacement.Name = "Operator Override"
	require.NoError(t, first.AddGlobalPolicy(replacement))

	// Memory backend does not persist, so a fresh store re-seeds defaults.
	second := NewStore(backend)
	require.NoError(t, second.Initialize())
	globals, _ := second.Counts()
	require.Equal(t, 3, globals)
}
