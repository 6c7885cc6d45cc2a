package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
)

// CacheTTL is how long a computed strategy is reused for an identical device
// situation. Policy changes inside this window do not take effect for keys
// already cached; that staleness is a documented trade-off.
const CacheTTL = 60 * time.Second

type cacheEntry struct {
	strategy domain.Strategy
	storedAt time.Time
}

// CacheKey buckets the device situation: task type, processing tier, network
// quality, and battery rounded to the nearest 10.
func CacheKey(summary domain.TaskSummary) string {
	battery := int(math.Round(summary.DeviceCapabilities.BatteryLevel/10) * 10)
	return fmt.Sprintf("%s|%s|%s|%d",
		summary.TaskType,
		summary.DeviceCapabilities.ProcessingPower,
		summary.DeviceCapabilities.NetworkQuality,
		battery,
	)
}

func (e *Engine) cached(key string) (domain.Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.cache[key]
	if !ok {
		return domain.Strategy{}, false
	}
	if e.now().Sub(entry.storedAt) >= e.ttl {
		return domain.Strategy{}, false
	}
	return entry.strategy, true
}

func (e *Engine) storeCache(key string, strategy domain.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[key] = cacheEntry{strategy: strategy, storedAt: e.now()}
}

// SweepCache evicts entries older than the TTL. Invoked by the maintenance
// scheduler; lookups also ignore expired entries, so a delayed sweep only
// costs memory.
func (e *Engine) SweepCache() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	evicted := 0
	for key, entry := range e.cache {
		if now.Sub(entry.storedAt) >= e.ttl {
			delete(e.cache, key)
			evicted++
		}
	}
	return evicted
}

// CacheSize reports the number of live cache entries for health reporting.
func (e *Engine) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
