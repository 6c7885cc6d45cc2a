package store

import (
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
)

// ScopeGlobal keys the shared policy set; every other scope is a device id.
const ScopeGlobal = "global"

// Backend is the optional durable-persistence contract behind the policy
// store and telemetry aggregator. The reference deployment runs on the no-op
// memory backend; a production deployment swaps in Postgres without touching
// the component APIs.
type Backend interface {
	Load() error
	Close() error

	SavePolicySet(scope string, policies []domain.Policy) error
	DeletePolicySet(scope string) error
	LoadPolicySets() (map[string][]domain.Policy, error)

	AppendTelemetry(record domain.TelemetryRecord) error
	LoadTelemetrySince(cutoff time.Time) ([]domain.TelemetryRecord, error)
}

// MemoryBackend keeps nothing. It exists so the in-memory reference
// deployment and tests can run with persistence wired but inert.
type MemoryBackend struct{}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load() error  { return nil }
func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) SavePolicySet(string, []domain.Policy) error {
	return nil
}

func (m *MemoryBackend) DeletePolicySet(string) error {
	return nil
}

func (m *MemoryBackend) LoadPolicySets() (map[string][]domain.Policy, error) {
	return map[string][]domain.Policy{}, nil
}

func (m *MemoryBackend) AppendTelemetry(domain.TelemetryRecord) error {
	return nil
}

func (m *MemoryBackend) LoadTelemetrySince(time.Time) ([]domain.TelemetryRecord, error) {
	return nil, nil
}
