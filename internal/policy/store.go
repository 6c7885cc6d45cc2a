package policy

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/store"
)

// Store holds global and per-device policies. The in-memory maps are the
// source of truth; the backend is a write-through durable copy whose
// failures are logged, never surfaced.
type Store struct {
	mu     sync.RWMutex
	global map[string]domain.Policy
	// globalOrder lists global policy ids in insertion order, so equal
	// priorities resolve the same way on every call.
	globalOrder []string
	device      map[string][]domain.Policy
	backend     store.Backend

	// now is swapped in tests to pin the validity clock.
	now func() time.Time
}

func NewStore(backend store.Backend) *Store {
	if backend == nil {
		backend = store.NewMemoryBackend()
	}
	return &Store{
		global:  map[string]domain.Policy{},
		device:  map[string][]domain.Policy{},
		backend: backend,
		now:     time.Now,
	}
}

// Initialize restores persisted policy sets from the backend, then seeds the
// default global policies. A restored policy with a default's id wins over
// the seed, so operator replacements survive restarts.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.backend.LoadPolicySets()
	if err != nil {
		return err
	}
	for scope, policies := range persisted {
		if scope == store.ScopeGlobal {
			for _, p := range policies {
				s.insertGlobalLocked(p)
			}
			continue
		}
		s.device[scope] = policies
	}

	for _, p := range DefaultGlobalPolicies(s.now()) {
		if _, exists := s.global[p.ID]; exists {
			continue
		}
		s.insertGlobalLocked(p)
	}
	s.persistGlobalLocked()
	return nil
}

// PoliciesFor returns global policies unioned with the device's own, filtered
// to the currently-valid window and sorted by each policy's maximum rule
// priority, descending.
func (s *Store) PoliciesFor(deviceID string) []domain.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]domain.Policy, 0, len(s.global)+len(s.device[deviceID]))
	for _, id := range s.globalOrder {
		if p := s.global[id]; policyActive(p, now) {
			out = append(out, p)
		}
	}
	for _, p := range s.device[deviceID] {
		if policyActive(p, now) {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MaxRulePriority() > out[j].MaxRulePriority()
	})
	return out
}

// UpdateDevicePolicies validates every policy, then replaces the device's
// entire stored set. Any single validation failure rejects the whole call
// and leaves the stored set unchanged.
func (s *Store) UpdateDevicePolicies(deviceID string, policies []domain.Policy) error {
	for _, p := range policies {
		if err := ValidatePolicy(p); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]domain.Policy, len(policies))
	copy(replacement, policies)
	s.device[deviceID] = replacement

	if err := s.backend.SavePolicySet(deviceID, replacement); err != nil {
		log.Printf("policy store: persist device=%s failed: %v", deviceID, err)
	}
	return nil
}

// AddGlobalPolicy validates then upserts a global policy by id.
func (s *Store) AddGlobalPolicy(p domain.Policy) error {
	if err := ValidatePolicy(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertGlobalLocked(p)
	s.persistGlobalLocked()
	return nil
}

// insertGlobalLocked upserts a global policy, appending its id to the
// insertion order only on first sight.
func (s *Store) insertGlobalLocked(p domain.Policy) {
	if _, exists := s.global[p.ID]; !exists {
		s.globalOrder = append(s.globalOrder, p.ID)
	}
	s.global[p.ID] = p
}

// CleanupExpired removes policies past their valid_until and drops a
// device's map entry entirely once its list is empty. Returns the number of
// policies removed.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	keptOrder := s.globalOrder[:0]
	for _, id := range s.globalOrder {
		if p := s.global[id]; !p.ValidUntil.After(now) {
			delete(s.global, id)
			removed++
			continue
		}
		keptOrder = append(keptOrder, id)
	}
	s.globalOrder = keptOrder
	if removed > 0 {
		s.persistGlobalLocked()
	}

	for deviceID, policies := range s.device {
		kept := policies[:0]
		for _, p := range policies {
			if p.ValidUntil.After(now) {
				kept = append(kept, p)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(s.device, deviceID)
			if err := s.backend.DeletePolicySet(deviceID); err != nil {
				log.Printf("policy store: drop persisted set device=%s failed: %v", deviceID, err)
			}
			continue
		}
		if len(kept) != len(policies) {
			s.device[deviceID] = kept
			if err := s.backend.SavePolicySet(deviceID, kept); err != nil {
				log.Printf("policy store: persist device=%s failed: %v", deviceID, err)
			}
		}
	}
	return removed
}

// Counts reports the number of active global policies and tracked devices,
// for health reporting.
func (s *Store) Counts() (globalPolicies, devicesWithPolicies int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.global), len(s.device)
}

func (s *Store) persistGlobalLocked() {
	// Persisted in insertion order so a restart restores the same
	// tie-break ordering.
	set := make([]domain.Policy, 0, len(s.global))
	for _, id := range s.globalOrder {
		set = append(set, s.global[id])
	}
	if err := s.backend.SavePolicySet(store.ScopeGlobal, set); err != nil {
		log.Printf("policy store: persist global set failed: %v", err)
	}
}

func policyActive(p domain.Policy, now time.Time) bool {
	return !p.ValidFrom.After(now) && p.ValidUntil.After(now)
}
