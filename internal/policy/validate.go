package policy

import (
	"fmt"
	"strings"

	"github.com/aabboodi/edgehub/internal/domain"
)

// ValidatePolicy rejects a policy when any required field is missing, the
// validity window is inverted, the rule list is empty, or any rule fails
// ValidateRule. Callers treat a single failure as fatal for the whole batch.
func ValidatePolicy(p domain.Policy) error {
	if strings.TrimSpace(p.ID) == "" {
		return domain.InvalidArgument("policy id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return domain.InvalidArgument(fmt.Sprintf("policy %s: name is required", p.ID))
	}
	if p.ValidFrom.IsZero() || p.ValidUntil.IsZero() {
		return domain.InvalidArgument(fmt.Sprintf("policy %s: valid_from and valid_until are required", p.ID))
	}
	if !p.ValidFrom.Before(p.ValidUntil) {
		return domain.InvalidArgument(fmt.Sprintf("policy %s: valid_from must precede valid_until", p.ID))
	}
	if len(p.Rules) == 0 {
		return domain.InvalidArgument(fmt.Sprintf("policy %s: rules must not be empty", p.ID))
	}
	if power := p.DeviceFilters.Capabilities.MinProcessingPower; power != "" {
		if _, ok := domain.ValidProcessingPowers[power]; !ok {
			return domain.InvalidArgument(fmt.Sprintf("policy %s: unknown min_processing_power %q", p.ID, power))
		}
	}
	for _, rule := range p.Rules {
		if err := ValidateRule(p.ID, rule); err != nil {
			return err
		}
	}
	return nil
}

func ValidateRule(policyID string, rule domain.Rule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return domain.InvalidArgument(fmt.Sprintf("policy %s: rule id is required", policyID))
	}
	if _, ok := domain.ValidRuleTypes[rule.Type]; !ok {
		return domain.InvalidArgument(fmt.Sprintf("policy %s: rule %s has unknown type %q", policyID, rule.ID, rule.Type))
	}
	if _, ok := domain.ValidStrategyTypes[rule.Action.Strategy]; !ok {
		return domain.InvalidArgument(fmt.Sprintf("policy %s: rule %s has unknown action strategy %q", policyID, rule.ID, rule.Action.Strategy))
	}
	for _, taskType := range rule.Condition.TaskTypes {
		if _, ok := domain.ValidTaskTypes[taskType]; !ok {
			return domain.InvalidArgument(fmt.Sprintf("policy %s: rule %s conditions on unknown task type %q", policyID, rule.ID, taskType))
		}
	}
	for _, quality := range rule.Condition.NetworkQuality {
		if _, ok := domain.ValidNetworkQualities[quality]; !ok {
			return domain.InvalidArgument(fmt.Sprintf("policy %s: rule %s conditions on unknown network quality %q", policyID, rule.ID, quality))
		}
	}
	if window := rule.Condition.TimeOfDay; window != nil {
		if _, err := domain.ParseClock(window.Start); err != nil {
			return domain.InvalidArgument(fmt.Sprintf("policy %s: rule %s has invalid time_of_day start %q", policyID, rule.ID, window.Start))
		}
		if _, err := domain.ParseClock(window.End); err != nil {
			return domain.InvalidArgument(fmt.Sprintf("policy %s: rule %s has invalid time_of_day end %q", policyID, rule.ID, window.End))
		}
	}
	return nil
}
