package policy

import (
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
)

// Default global policy ids. Re-seeding upserts by id, so restarts never
// duplicate them.
const (
	DefaultBatteryPolicyID = "global-battery-conservation"
	DefaultNetworkPolicyID = "global-network-optimization"
	DefaultPrivacyPolicyID = "global-privacy-protection"
)

const defaultPolicyValidity = 365 * 24 * time.Hour

func floatPtr(v float64) *float64 { return &v }

// DefaultGlobalPolicies builds the three policies seeded at start-up:
// battery conservation, network optimization, and privacy protection.
func DefaultGlobalPolicies(now time.Time) []domain.Policy {
	validFrom := now.Add(-time.Minute)
	validUntil := now.Add(defaultPolicyValidity)

	return []domain.Policy{
		{
			ID:         DefaultBatteryPolicyID,
			Version:    "1.0.0",
			Name:       "Battery Conservation",
			ValidFrom:  validFrom,
			ValidUntil: validUntil,
			Signature:  "seed",
			Rules: []domain.Rule{
				{
					ID:       "battery-low-offload",
					Type:     domain.RuleRoute,
					Priority: 100,
					Condition: domain.RuleCondition{
						DeviceBattery: &domain.Range{Min: floatPtr(0), Max: floatPtr(20)},
					},
					Action: domain.RuleAction{
						Strategy: domain.StrategyProcessCloud,
						Message:  "battery level is critical; offloading to cloud",
					},
				},
			},
		},
		{
			ID:         DefaultNetworkPolicyID,
			Version:    "1.0.0",
			Name:       "Network Optimization",
			ValidFrom:  validFrom,
			ValidUntil: validUntil,
			Signature:  "seed",
			Rules: []domain.Rule{
				{
					ID:       "poor-network-cache",
					Type:     domain.RuleCache,
					Priority: 90,
					Condition: domain.RuleCondition{
						NetworkQuality: []domain.NetworkQuality{domain.NetworkPoor},
					},
					Action: domain.RuleAction{
						Strategy:   domain.StrategyCacheResult,
						Parameters: map[string]any{"ttl": 300},
						Message:    "network quality is poor; serving from cache",
					},
				},
				{
					ID:       "excellent-network-local",
					Type:     domain.RuleRoute,
					Priority: 80,
					Condition: domain.RuleCondition{
						TaskTypes:      []domain.TaskType{domain.TaskClassification, domain.TaskModeration},
						NetworkQuality: []domain.NetworkQuality{domain.NetworkExcellent},
					},
					Action: domain.RuleAction{
						Strategy: domain.StrategyProcessLocal,
						Message:  "lightweight task on an excellent network; processing locally",
					},
				},
			},
		},
		{
			ID:         DefaultPrivacyPolicyID,
			Version:    "1.0.0",
			Name:       "Privacy Protection",
			ValidFrom:  validFrom,
			ValidUntil: validUntil,
			Signature:  "seed",
			Rules: []domain.Rule{
				{
					ID:       "chat-privacy-local",
					Type:     domain.RuleRoute,
					Priority: 200,
					Condition: domain.RuleCondition{
						TaskTypes:   []domain.TaskType{domain.TaskChat},
						ContextSize: &domain.Range{Max: floatPtr(1000)},
					},
					Action: domain.RuleAction{
						Strategy: domain.StrategyProcessLocal,
						Message:  "small chat context stays on device for privacy",
					},
				},
			},
		},
	}
}
