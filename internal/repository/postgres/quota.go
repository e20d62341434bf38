package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insider-one/mailcourier/internal/domain"
)

// QuotaStore implements domain.QuotaStore on the providers table. The quota
// counters live next to the provider row, so the day-boundary reset and the
// claim happen in one UPDATE and concurrent reservers serialize on the row
// lock.
type QuotaStore struct {
	db *DB
}

// NewQuotaStore creates a new QuotaStore
func NewQuotaStore(db *DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// Reserve claims one unit of the provider's daily quota. When now is at or
// past quota_reset_at (or no window was started yet) the counter restarts at
// zero and the window advances before the claim is checked.
func (s *QuotaStore) Reserve(ctx context.Context, providerID uuid.UUID, now time.Time) (domain.QuotaUsage, error) {
	query := `
		UPDATE providers SET
			used_today = CASE
				WHEN quota_reset_at IS NULL OR quota_reset_at <= $2 THEN 1
				ELSE used_today + 1
			END,
			quota_reset_at = CASE
				WHEN quota_reset_at IS NULL OR quota_reset_at <= $2 THEN $3
				ELSE quota_reset_at
			END
		WHERE id = $1
		  AND CASE
				WHEN quota_reset_at IS NULL OR quota_reset_at <= $2 THEN 0
				ELSE used_today
			END < daily_quota
		RETURNING used_today, daily_quota, quota_reset_at
	`

	var usage domain.QuotaUsage
	err := s.db.Pool.QueryRow(ctx, query, providerID, now, now.Add(domain.QuotaPeriod)).
		Scan(&usage.Used, &usage.Limit, &usage.ResetAt)
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.QuotaUsage{}, fmt.Errorf("failed to reserve quota: %w", err)
	}

	// Zero rows means the provider is missing or the day is spent.
	var exists bool
	if err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1)`, providerID).
		Scan(&exists); err != nil {
		return domain.QuotaUsage{}, fmt.Errorf("failed to check provider: %w", err)
	}
	if !exists {
		return domain.QuotaUsage{}, domain.ErrNotFound
	}
	return domain.QuotaUsage{}, domain.ErrQuotaExhausted
}

// Release returns one unit. Unknown providers are a no-op.
func (s *QuotaStore) Release(ctx context.Context, providerID uuid.UUID) error {
	query := `UPDATE providers SET used_today = GREATEST(used_today - 1, 0) WHERE id = $1`

	if _, err := s.db.Pool.Exec(ctx, query, providerID); err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

// Usage reads the provider's counters without mutating them
func (s *QuotaStore) Usage(ctx context.Context, providerID uuid.UUID) (domain.QuotaUsage, error) {
	query := `SELECT used_today, daily_quota, quota_reset_at FROM providers WHERE id = $1`

	var usage domain.QuotaUsage
	var resetAt *time.Time
	err := s.db.Pool.QueryRow(ctx, query, providerID).Scan(&usage.Used, &usage.Limit, &resetAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.QuotaUsage{}, domain.ErrNotFound
		}
		return domain.QuotaUsage{}, fmt.Errorf("failed to read quota usage: %w", err)
	}
	if resetAt != nil {
		usage.ResetAt = *resetAt
	}
	return usage, nil
}
