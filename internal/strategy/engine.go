package strategy

import (
	"fmt"
	"log"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
)

// Engine picks a processing strategy for a task summary by evaluating the
// supplied policies against the device's current state. Decisions are cached
// per device situation for CacheTTL.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]cacheEntry
	ttl   time.Duration

	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{
		cache: map[string]cacheEntry{},
		ttl:   CacheTTL,
		now:   time.Now,
	}
}

type ruleMatch struct {
	rule   domain.Rule
	policy domain.Policy
}

// Decide returns a strategy for the summary. It never fails: an unexpected
// evaluation error is recovered and replaced with a conservative cloud
// fallback, because a routing decision must always be produced.
func (e *Engine) Decide(summary domain.TaskSummary, policies []domain.Policy, deviceID string) domain.Strategy {
	key := CacheKey(summary)
	if cached, ok := e.cached(key); ok {
		return cached
	}

	strategy := e.evaluateSafely(summary, policies, key, deviceID)
	e.storeCache(key, strategy)
	return strategy
}

func (e *Engine) evaluateSafely(summary domain.TaskSummary, policies []domain.Policy, cacheKey, deviceID string) (strategy domain.Strategy) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("strategy engine: evaluation panic device=%s task=%s: %v", deviceID, summary.TaskID, recovered)
			strategy = e.fallbackStrategy(summary)
		}
	}()
	return e.evaluate(summary, policies, cacheKey)
}

func (e *Engine) evaluate(summary domain.TaskSummary, policies []domain.Policy, cacheKey string) domain.Strategy {
	matches := collectMatches(summary, policies, e.now())

	// Stable sort preserves first-encountered order on priority ties.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].rule.Priority > matches[j].rule.Priority
	})

	if len(matches) > 0 {
		return e.buildFromRule(summary, matches[0], cacheKey)
	}
	return e.defaultHeuristic(summary)
}

func collectMatches(summary domain.TaskSummary, policies []domain.Policy, now time.Time) []ruleMatch {
	var matches []ruleMatch
	for _, p := range policies {
		if !capabilitiesSatisfy(p.DeviceFilters.Capabilities, summary.DeviceCapabilities) {
			continue
		}
		for _, rule := range p.Rules {
			if ruleMatches(rule, summary, now) {
				matches = append(matches, ruleMatch{rule: rule, policy: p})
			}
		}
	}
	return matches
}

func capabilitiesSatisfy(filter domain.CapabilityFilter, caps domain.DeviceCapabilities) bool {
	if filter.MinMemory > 0 && caps.AvailableMemory < filter.MinMemory {
		return false
	}
	if filter.MinProcessingPower != "" &&
		domain.PowerOrdinal(caps.ProcessingPower) < domain.PowerOrdinal(filter.MinProcessingPower) {
		return false
	}
	if filter.MinBatteryLevel > 0 && caps.BatteryLevel < filter.MinBatteryLevel {
		return false
	}
	return true
}

func ruleMatches(rule domain.Rule, summary domain.TaskSummary, now time.Time) bool {
	cond := rule.Condition

	if len(cond.TaskTypes) > 0 && !slices.Contains(cond.TaskTypes, summary.TaskType) {
		return false
	}
	if cond.ContextSize != nil && !inRange(float64(len(summary.CompressedContext)), cond.ContextSize) {
		return false
	}
	if cond.DeviceBattery != nil && !inRange(summary.DeviceCapabilities.BatteryLevel, cond.DeviceBattery) {
		return false
	}
	if len(cond.NetworkQuality) > 0 && !slices.Contains(cond.NetworkQuality, summary.DeviceCapabilities.NetworkQuality) {
		return false
	}
	if cond.TimeOfDay != nil {
		inside, err := cond.TimeOfDay.Contains(now)
		if err != nil || !inside {
			return false
		}
	}
	if len(cond.UserTier) > 0 && !slices.Contains(cond.UserTier, summary.Metadata.UserTier) {
		return false
	}
	return true
}

func (e *Engine) buildFromRule(summary domain.TaskSummary, match ruleMatch, cacheKey string) domain.Strategy {
	rule := match.rule
	strategyType := rule.Action.Strategy

	reasoning := rule.Action.Message
	if reasoning == "" {
		reasoning = fmt.Sprintf("matched rule %s of policy %q", rule.ID, match.policy.Name)
	}

	parameters := map[string]any{}
	switch rule.Type {
	case domain.RuleCache:
		parameters["cacheKey"] = cacheKey
	case domain.RuleDefer:
		parameters["deferUntil"] = e.now().Add(5 * time.Minute).UTC()
	case domain.RuleLimit:
		parameters["maxTokens"] = 1000
		parameters["timeout"] = 30
	case domain.RuleRoute, domain.RuleDeny:
		// No defaults beyond what the action carries.
	}
	for key, value := range rule.Action.Parameters {
		parameters[key] = value
	}

	contextLen := len(summary.CompressedContext)
	return domain.Strategy{
		Type:       strategyType,
		Reasoning:  reasoning,
		Parameters: parameters,
		Metadata: domain.StrategyMetadata{
			Confidence:       0.9,
			EstimatedCost:    estimateCost(strategyType, contextLen),
			EstimatedLatency: estimateLatencyMS(strategyType, contextLen),
			PrivacyLevel:     privacyLevel(strategyType),
		},
	}
}

// defaultHeuristic is the decision when no policy rule matches.
func (e *Engine) defaultHeuristic(summary domain.TaskSummary) domain.Strategy {
	caps := summary.DeviceCapabilities
	contextLen := len(summary.CompressedContext)

	var strategyType domain.StrategyType
	var reasoning string
	switch {
	case caps.ProcessingPower == domain.PowerHigh &&
		caps.BatteryLevel > 50 &&
		caps.NetworkQuality == domain.NetworkExcellent:
		strategyType = domain.StrategyProcessLocal
		reasoning = "no policy matched; device is well resourced, processing locally"
	case caps.BatteryLevel < 30 || caps.NetworkQuality == domain.NetworkPoor:
		strategyType = domain.StrategyProcessCloud
		reasoning = "no policy matched; constrained device, offloading to cloud"
	default:
		strategyType = domain.StrategyHybrid
		reasoning = "no policy matched; splitting work between device and cloud"
	}

	return domain.Strategy{
		Type:      strategyType,
		Reasoning: reasoning,
		Metadata: domain.StrategyMetadata{
			Confidence:       0.7,
			EstimatedCost:    estimateCost(strategyType, contextLen),
			EstimatedLatency: estimateLatencyMS(strategyType, contextLen),
			PrivacyLevel:     privacyLevel(strategyType),
		},
	}
}

// fallbackStrategy is the conservative answer when evaluation itself failed.
func (e *Engine) fallbackStrategy(summary domain.TaskSummary) domain.Strategy {
	contextLen := len(summary.CompressedContext)
	return domain.Strategy{
		Type:      domain.StrategyProcessCloud,
		Reasoning: "strategy evaluation failed; falling back to cloud processing",
		Metadata: domain.StrategyMetadata{
			Confidence:       0.3,
			EstimatedCost:    estimateCost(domain.StrategyProcessCloud, contextLen),
			EstimatedLatency: estimateLatencyMS(domain.StrategyProcessCloud, contextLen),
			PrivacyLevel:     domain.PrivacyLow,
		},
	}
}

func inRange(value float64, bounds *domain.Range) bool {
	if bounds.Min != nil && value < *bounds.Min {
		return false
	}
	if bounds.Max != nil && value > *bounds.Max {
		return false
	}
	return true
}
