package retry

import (
	"sync"

	"github.com/yamakatsunamamugi/autoai/internal/errors"
)

// Metrics aggregates attempt counters for one manager instance. Counters
// are instance-scoped and never shared across tasks, so a single mutex is
// sufficient. Read-only to everything except the manager itself.
type Metrics struct {
	mu sync.Mutex

	totalAttempts      int
	successfulAttempts int
	byClass            map[errors.Classification]int
	byTier             map[Tier]int
}

// NewMetrics creates an empty metrics aggregate.
func NewMetrics() *Metrics {
	return &Metrics{
		byClass: make(map[errors.Classification]int),
		byTier:  make(map[Tier]int),
	}
}

// recordAttempt counts one attempt, successful or not.
func (m *Metrics) recordAttempt(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalAttempts++
	if success {
		m.successfulAttempts++
	}
}

// recordFailure counts a classified failure and the tier chosen for it.
func (m *Metrics) recordFailure(class errors.Classification, tier Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byClass[class]++
	m.byTier[tier]++
}

// Snapshot is a point-in-time copy of the aggregate counters.
type Snapshot struct {
	TotalAttempts      int
	SuccessfulAttempts int
	ByErrorType        map[string]int
	ByTier             map[string]int
}

// Snapshot returns a copy of the current counters, keyed by the stable
// string names used in logs.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalAttempts:      m.totalAttempts,
		SuccessfulAttempts: m.successfulAttempts,
		ByErrorType:        make(map[string]int, len(m.byClass)),
		ByTier:             make(map[string]int, len(m.byTier)),
	}
	for class, n := range m.byClass {
		s.ByErrorType[class.String()] = n
	}
	for tier, n := range m.byTier {
		s.ByTier[tier.String()] = n
	}
	return s
}
