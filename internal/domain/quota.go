package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QuotaPeriod is the length of one quota day
const QuotaPeriod = 24 * time.Hour

// QuotaUsage is a point-in-time view of a provider's daily consumption
type QuotaUsage struct {
	Used    int       `json:"used"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns the units left in the current quota day
func (u QuotaUsage) Remaining() int {
	if r := u.Limit - u.Used; r > 0 {
		return r
	}
	return 0
}

// QuotaStore owns the per-provider daily counters.
//
// Reserve applies the day-boundary reset and claims one unit as a single
// atomic step: when now is at or past the provider's reset instant (or the
// provider has never reserved), used resets to zero and the reset instant
// advances to now plus QuotaPeriod before the claim is checked against the
// limit. A full day yields ErrQuotaExhausted, an unknown provider
// ErrNotFound. Release returns one unit, never drops below zero and ignores
// unknown providers, so releasing after a concurrent delete stays safe.
type QuotaStore interface {
	Reserve(ctx context.Context, providerID uuid.UUID, now time.Time) (QuotaUsage, error)
	Release(ctx context.Context, providerID uuid.UUID) error
	Usage(ctx context.Context, providerID uuid.UUID) (QuotaUsage, error)
}
