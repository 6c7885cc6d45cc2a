package strategy

import "github.com/aabboodi/edgehub/internal/domain"

// Fixed per-strategy base estimates, scaled by compressed-context size.
// Cost is USD per request, latency is milliseconds.

func baseCost(t domain.StrategyType) float64 {
	switch t {
	case domain.StrategyProcessLocal:
		return 0.0005
	case domain.StrategyProcessCloud:
		return 0.0100
	case domain.StrategyHybrid:
		return 0.0040
	case domain.StrategyCacheResult:
		return 0.0001
	case domain.StrategyDefer:
		return 0
	default:
		// Unknown types are treated like the conservative cloud path.
		return 0.0100
	}
}

func baseLatencyMS(t domain.StrategyType) float64 {
	switch t {
	case domain.StrategyProcessLocal:
		return 150
	case domain.StrategyProcessCloud:
		return 800
	case domain.StrategyHybrid:
		return 500
	case domain.StrategyCacheResult:
		return 10
	case domain.StrategyDefer:
		return 0
	default:
		return 800
	}
}

func privacyLevel(t domain.StrategyType) domain.PrivacyLevel {
	switch t {
	case domain.StrategyProcessLocal:
		return domain.PrivacyHigh
	case domain.StrategyProcessCloud:
		return domain.PrivacyLow
	case domain.StrategyHybrid:
		return domain.PrivacyMedium
	case domain.StrategyCacheResult:
		return domain.PrivacyMedium
	case domain.StrategyDefer:
		return domain.PrivacyHigh
	default:
		return domain.PrivacyLow
	}
}

// contextScale grows the estimate linearly with the compressed context; a
// 10k-char context doubles cost, a 5k-char context doubles latency.
func estimateCost(t domain.StrategyType, contextLen int) float64 {
	return baseCost(t) * (1 + float64(contextLen)/10000)
}

func estimateLatencyMS(t domain.StrategyType, contextLen int) float64 {
	return baseLatencyMS(t) * (1 + float64(contextLen)/5000)
}
