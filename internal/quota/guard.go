// Package quota enforces per-provider daily send ceilings through a
// reserve/settle protocol. A unit is consumed at reservation time; committing
// keeps it consumed, releasing returns it. The store applies the day-boundary
// reset atomically with the first reservation after the boundary, so the
// committed count within one quota day never exceeds the daily limit, even
// under concurrent dispatchers.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insider-one/mailcourier/internal/domain"
)

// Guard wraps a QuotaStore with reservation bookkeeping
type Guard struct {
	store domain.QuotaStore
	now   func() time.Time
}

// Option configures a Guard
type Option func(*Guard)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a new Guard
func NewGuard(store domain.QuotaStore, opts ...Option) *Guard {
	g := &Guard{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reservation is one claimed quota unit awaiting settlement
type Reservation struct {
	ProviderID uuid.UUID
	Usage      domain.QuotaUsage

	mu      sync.Mutex
	settled bool
}

// Reserve claims one unit of the provider's daily quota. It returns
// domain.ErrQuotaExhausted when the day's limit is already consumed.
func (g *Guard) Reserve(ctx context.Context, providerID uuid.UUID) (*Reservation, error) {
	usage, err := g.store.Reserve(ctx, providerID, g.now())
	if err != nil {
		return nil, err
	}
	return &Reservation{ProviderID: providerID, Usage: usage}, nil
}

// Commit settles the reservation, keeping the unit consumed
func (g *Guard) Commit(ctx context.Context, res *Reservation) error {
	return res.settle(func() error { return nil })
}

// Release settles the reservation and returns the unit to the provider
func (g *Guard) Release(ctx context.Context, res *Reservation) error {
	return res.settle(func() error { return g.store.Release(ctx, res.ProviderID) })
}

// Usage reads the provider's current consumption without mutating it
func (g *Guard) Usage(ctx context.Context, providerID uuid.UUID) (domain.QuotaUsage, error) {
	return g.store.Usage(ctx, providerID)
}

func (r *Reservation) settle(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return domain.ErrReservationSettled
	}
	if err := fn(); err != nil {
		return err
	}
	r.settled = true
	return nil
}
