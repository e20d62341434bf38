package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insider-one/mailcourier/internal/domain"
)

// ProviderRepository implements domain.ProviderRepository using PostgreSQL
type ProviderRepository struct {
	db *DB
}

// NewProviderRepository creates a new ProviderRepository
func NewProviderRepository(db *DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `id, name, kind, credentials_key, credentials_secret,
	daily_quota, used_today, quota_reset_at, is_active,
	endpoint, method, headers, authentication, payload_template, field_mappings,
	created_at, updated_at`

// Create creates a new provider
func (r *ProviderRepository) Create(ctx context.Context, p *domain.Provider) error {
	headers, auth, tmpl, mappings, err := marshalProviderConfig(p)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO providers (%s) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`, providerColumns)

	_, err = r.db.Pool.Exec(ctx, query,
		p.ID, p.Name, p.Kind, p.Credentials.Key, p.Credentials.Secret,
		p.DailyQuota, p.UsedToday, p.QuotaResetAt, p.IsActive,
		p.Endpoint, p.Method, headers, auth, tmpl, mappings,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}

	return nil
}

// GetByID retrieves a provider by ID
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Provider, error) {
	query := fmt.Sprintf(`SELECT %s FROM providers WHERE id = $1`, providerColumns)

	return r.scanProvider(ctx, query, id)
}

// List lists providers matching the filter
func (r *ProviderRepository) List(ctx context.Context, filter domain.ProviderFilter) ([]*domain.Provider, error) {
	conditions := []string{"1=1"}
	args := []any{}
	argIndex := 1

	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIndex))
		args = append(args, *filter.Kind)
		argIndex++
	}

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *filter.IsActive)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT %s FROM providers
		WHERE %s
		ORDER BY created_at ASC
	`, providerColumns, strings.Join(conditions, " AND "))

	return r.scanProviders(ctx, query, args...)
}

// ListActive lists active providers in registration order
func (r *ProviderRepository) ListActive(ctx context.Context) ([]*domain.Provider, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM providers
		WHERE is_active = TRUE
		ORDER BY created_at ASC
	`, providerColumns)

	return r.scanProviders(ctx, query)
}

// Update updates a provider's configuration. The quota counters (used_today,
// quota_reset_at) are owned by the quota store and never written here.
func (r *ProviderRepository) Update(ctx context.Context, p *domain.Provider) error {
	headers, auth, tmpl, mappings, err := marshalProviderConfig(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE providers SET
			name = $2, kind = $3, credentials_key = $4, credentials_secret = $5,
			daily_quota = $6, is_active = $7, endpoint = $8, method = $9,
			headers = $10, authentication = $11, payload_template = $12,
			field_mappings = $13, updated_at = $14
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.Name, p.Kind, p.Credentials.Key, p.Credentials.Secret,
		p.DailyQuota, p.IsActive, p.Endpoint, p.Method,
		headers, auth, tmpl, mappings, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to update provider: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Delete deletes a provider
func (r *ProviderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM providers WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Helper functions

func marshalProviderConfig(p *domain.Provider) (headers, auth, tmpl, mappings []byte, err error) {
	if p.Headers != nil {
		if headers, err = json.Marshal(p.Headers); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal provider headers: %w", err)
		}
	}
	if p.Auth != nil {
		if auth, err = json.Marshal(p.Auth); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal provider authentication: %w", err)
		}
	}
	if p.PayloadTemplate != nil {
		if tmpl, err = json.Marshal(p.PayloadTemplate); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal payload template: %w", err)
		}
	}
	if p.FieldMappings != nil {
		if mappings, err = json.Marshal(p.FieldMappings); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal field mappings: %w", err)
		}
	}
	return headers, auth, tmpl, mappings, nil
}

func (r *ProviderRepository) scanProvider(ctx context.Context, query string, args ...any) (*domain.Provider, error) {
	row := r.db.Pool.QueryRow(ctx, query, args...)

	p, err := scanProviderRow(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan provider: %w", err)
	}

	return p, nil
}

func (r *ProviderRepository) scanProviders(ctx context.Context, query string, args ...any) ([]*domain.Provider, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	providers := make([]*domain.Provider, 0)
	for rows.Next() {
		p, err := scanProviderRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating providers: %w", err)
	}

	return providers, nil
}

func scanProviderRow(scan func(dest ...any) error) (*domain.Provider, error) {
	p := &domain.Provider{}
	var headers, auth, tmpl, mappings []byte

	err := scan(
		&p.ID, &p.Name, &p.Kind, &p.Credentials.Key, &p.Credentials.Secret,
		&p.DailyQuota, &p.UsedToday, &p.QuotaResetAt, &p.IsActive,
		&p.Endpoint, &p.Method, &headers, &auth, &tmpl, &mappings,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(headers) > 0 {
		json.Unmarshal(headers, &p.Headers)
	}
	if len(auth) > 0 {
		json.Unmarshal(auth, &p.Auth)
	}
	if len(tmpl) > 0 {
		json.Unmarshal(tmpl, &p.PayloadTemplate)
	}
	if len(mappings) > 0 {
		json.Unmarshal(mappings, &p.FieldMappings)
	}

	return p, nil
}
