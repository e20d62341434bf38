package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insider-one/mailcourier/internal/domain"
)

// MemoryStore is an in-process QuotaStore for tests and single-node runs
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*memoryEntry
}

type memoryEntry struct {
	limit   int
	used    int
	resetAt time.Time
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*memoryEntry)}
}

// Register sets or updates a provider's daily limit. Existing consumption is
// preserved on updates.
func (s *MemoryStore) Register(providerID uuid.UUID, dailyQuota int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[providerID]; ok {
		e.limit = dailyQuota
		return
	}
	s.entries[providerID] = &memoryEntry{limit: dailyQuota}
}

// Remove drops the provider's counters
func (s *MemoryStore) Remove(providerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, providerID)
}

// Reserve claims one unit, applying the day-boundary reset first. Both steps
// happen under the same lock so concurrent reservers cannot overshoot the
// limit or double-reset the window.
func (s *MemoryStore) Reserve(ctx context.Context, providerID uuid.UUID, now time.Time) (domain.QuotaUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[providerID]
	if !ok {
		return domain.QuotaUsage{}, domain.ErrNotFound
	}

	if e.resetAt.IsZero() || !now.Before(e.resetAt) {
		e.used = 0
		e.resetAt = now.Add(domain.QuotaPeriod)
	}

	if e.used >= e.limit {
		return domain.QuotaUsage{}, domain.ErrQuotaExhausted
	}
	e.used++

	return domain.QuotaUsage{Used: e.used, Limit: e.limit, ResetAt: e.resetAt}, nil
}

// Release returns one unit. Unknown providers are a no-op so releasing after
// a concurrent delete stays safe.
func (s *MemoryStore) Release(ctx context.Context, providerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[providerID]
	if !ok {
		return nil
	}
	if e.used > 0 {
		e.used--
	}
	return nil
}

// Usage reads the provider's counters without mutating them
func (s *MemoryStore) Usage(ctx context.Context, providerID uuid.UUID) (domain.QuotaUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[providerID]
	if !ok {
		return domain.QuotaUsage{}, domain.ErrNotFound
	}
	return domain.QuotaUsage{Used: e.used, Limit: e.limit, ResetAt: e.resetAt}, nil
}
