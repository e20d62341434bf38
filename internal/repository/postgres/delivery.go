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

// DeliveryRepository implements domain.DeliveryRepository using PostgreSQL
type DeliveryRepository struct {
	db *DB
}

// NewDeliveryRepository creates a new DeliveryRepository
func NewDeliveryRepository(db *DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, batch_id, provider_id, request, recipient, subject,
	status, attempts, http_status, provider_message_id, error_message,
	created_at, updated_at, sent_at`

// Create creates a new delivery
func (r *DeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	request, err := json.Marshal(d.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery request: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO deliveries (%s) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`, deliveryColumns)

	_, err = r.db.Pool.Exec(ctx, query,
		d.ID, d.BatchID, d.ProviderID, request, d.Recipient, d.Subject,
		d.Status, d.Attempts, d.HTTPStatus, d.ProviderMessageID, d.ErrorMessage,
		d.CreatedAt, d.UpdatedAt, d.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}

	return nil
}

// CreateBatch creates multiple deliveries in a single transaction
func (r *DeliveryRepository) CreateBatch(ctx context.Context, deliveries []*domain.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO deliveries (%s) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`, deliveryColumns)

	for _, d := range deliveries {
		request, err := json.Marshal(d.Request)
		if err != nil {
			return fmt.Errorf("failed to marshal delivery request: %w", err)
		}

		_, err = tx.Exec(ctx, query,
			d.ID, d.BatchID, d.ProviderID, request, d.Recipient, d.Subject,
			d.Status, d.Attempts, d.HTTPStatus, d.ProviderMessageID, d.ErrorMessage,
			d.CreatedAt, d.UpdatedAt, d.SentAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create delivery in batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a delivery by ID
func (r *DeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM deliveries WHERE id = $1`, deliveryColumns)

	return r.scanDelivery(ctx, query, id)
}

// GetByBatchID retrieves all deliveries in a batch
func (r *DeliveryRepository) GetByBatchID(ctx context.Context, batchID uuid.UUID) ([]*domain.Delivery, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deliveries
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`, deliveryColumns)

	return r.scanDeliveries(ctx, query, batchID)
}

// Update updates an existing delivery
func (r *DeliveryRepository) Update(ctx context.Context, d *domain.Delivery) error {
	query := `
		UPDATE deliveries SET
			batch_id = $2, provider_id = $3, status = $4, attempts = $5,
			http_status = $6, provider_message_id = $7, error_message = $8,
			updated_at = $9, sent_at = $10
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query,
		d.ID, d.BatchID, d.ProviderID, d.Status, d.Attempts,
		d.HTTPStatus, d.ProviderMessageID, d.ErrorMessage,
		d.UpdatedAt, d.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// List lists deliveries with filters and pagination
func (r *DeliveryRepository) List(ctx context.Context, filter domain.DeliveryFilter) (*domain.DeliveryListResult, error) {
	// Build the WHERE clause
	conditions := []string{"1=1"}
	args := []any{}
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.ProviderID != nil {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", argIndex))
		args = append(args, *filter.ProviderID)
		argIndex++
	}

	if filter.BatchID != nil {
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", argIndex))
		args = append(args, *filter.BatchID)
		argIndex++
	}

	if filter.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}

	if filter.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Get total count
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM deliveries WHERE %s", whereClause)
	var total int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}

	// Apply pagination
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s FROM deliveries
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, deliveryColumns, whereClause, argIndex, argIndex+1)

	args = append(args, pageSize, offset)
	deliveries, err := r.scanDeliveries(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &domain.DeliveryListResult{
		Deliveries: deliveries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Helper functions

func (r *DeliveryRepository) scanDelivery(ctx context.Context, query string, args ...any) (*domain.Delivery, error) {
	row := r.db.Pool.QueryRow(ctx, query, args...)

	d, err := scanDeliveryRow(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}

	return d, nil
}

func (r *DeliveryRepository) scanDeliveries(ctx context.Context, query string, args ...any) ([]*domain.Delivery, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]*domain.Delivery, 0)
	for rows.Next() {
		d, err := scanDeliveryRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}

	return deliveries, nil
}

func scanDeliveryRow(scan func(dest ...any) error) (*domain.Delivery, error) {
	d := &domain.Delivery{}
	var request []byte

	err := scan(
		&d.ID, &d.BatchID, &d.ProviderID, &request, &d.Recipient, &d.Subject,
		&d.Status, &d.Attempts, &d.HTTPStatus, &d.ProviderMessageID, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt, &d.SentAt,
	)
	if err != nil {
		return nil, err
	}

	if len(request) > 0 {
		json.Unmarshal(request, &d.Request)
	}

	return d, nil
}
