package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/insider-one/mailcourier/internal/domain"
)

const (
	maxFanOut = 1000
)

// SendService accepts send requests and fans them out into per-recipient
// deliveries
type SendService struct {
	deliveryRepo    domain.DeliveryRepository
	providerRepo    domain.ProviderRepository
	queue           domain.Queue
	logger          *slog.Logger
	statusBroadcast func(delivery *domain.Delivery)
}

// NewSendService creates a new SendService
func NewSendService(
	deliveryRepo domain.DeliveryRepository,
	providerRepo domain.ProviderRepository,
	queue domain.Queue,
	logger *slog.Logger,
) *SendService {
	return &SendService{
		deliveryRepo: deliveryRepo,
		providerRepo: providerRepo,
		queue:        queue,
		logger:       logger,
	}
}

// SetStatusBroadcast sets the function to broadcast status updates
func (s *SendService) SetStatusBroadcast(fn func(delivery *domain.Delivery)) {
	s.statusBroadcast = fn
}

// SubmitRequest represents a request to send an email to one or more
// recipients. ProviderID pins every delivery to a specific provider; when
// nil the worker selects among active providers.
type SubmitRequest struct {
	Sender     domain.Address   `json:"sender" validate:"required"`
	Recipients []domain.Address `json:"recipients" validate:"required,min=1,max=1000,dive"`
	Subject    string           `json:"subject" validate:"required"`
	HTML       string           `json:"html,omitempty"`
	Text       string           `json:"text,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	ProviderID *uuid.UUID       `json:"provider_id,omitempty"`
}

// sendRequest returns the canonical send request shared by every delivery in
// the batch
func (r SubmitRequest) sendRequest() domain.SendRequest {
	return domain.SendRequest{
		Sender:     r.Sender,
		Recipients: r.Recipients,
		Subject:    r.Subject,
		HTML:       r.HTML,
		Text:       r.Text,
		Metadata:   r.Metadata,
	}
}

// Submit fans the request out into one queued delivery per recipient and
// enqueues a dispatch job for each. All deliveries share a batch ID.
func (s *SendService) Submit(ctx context.Context, req SubmitRequest) ([]*domain.Delivery, error) {
	if len(req.Recipients) == 0 {
		return nil, domain.NewValidationError("recipients", "at least one recipient is required")
	}
	if len(req.Recipients) > maxFanOut {
		return nil, domain.ErrBatchSizeExceeded
	}
	if req.Sender.Email == "" {
		return nil, domain.NewValidationError("sender.email", "sender email is required")
	}
	if req.Subject == "" {
		return nil, domain.NewValidationError("subject", "subject is required")
	}
	if req.HTML == "" && req.Text == "" {
		return nil, domain.NewValidationError("body", "at least one of html or text is required")
	}

	if req.ProviderID != nil {
		provider, err := s.providerRepo.GetByID(ctx, *req.ProviderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewValidationError("provider_id", "provider does not exist")
			}
			return nil, fmt.Errorf("failed to load pinned provider: %w", err)
		}
		if !provider.IsActive {
			return nil, domain.ErrProviderInactive
		}
	} else {
		active, err := s.providerRepo.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active providers: %w", err)
		}
		if len(active) == 0 {
			return nil, domain.ErrNoEligibleProvider
		}
	}

	base := req.sendRequest()
	batchID := uuid.New()
	now := time.Now().UTC()

	deliveries := make([]*domain.Delivery, 0, len(req.Recipients))
	jobs := make([]*domain.DispatchJob, 0, len(req.Recipients))

	for _, rcpt := range req.Recipients {
		delivery := domain.NewDelivery(base.ForRecipient(rcpt))
		delivery.BatchID = &batchID
		delivery.ProviderID = req.ProviderID
		deliveries = append(deliveries, delivery)

		jobs = append(jobs, &domain.DispatchJob{
			DeliveryID: delivery.ID,
			ProviderID: req.ProviderID,
			EnqueuedAt: now,
		})
	}

	if err := s.deliveryRepo.CreateBatch(ctx, deliveries); err != nil {
		return nil, fmt.Errorf("failed to create deliveries: %w", err)
	}

	if err := s.queue.EnqueueBatch(ctx, jobs); err != nil {
		// The deliveries are already persisted; failing the request now
		// would invite duplicate submissions.
		s.logger.Error("failed to enqueue batch",
			"batch_id", batchID,
			"error", err,
		)
	}

	s.logger.Info("send accepted",
		"batch_id", batchID,
		"deliveries", len(deliveries),
	)

	return deliveries, nil
}

// GetByID retrieves a delivery by ID
func (s *SendService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	return s.deliveryRepo.GetByID(ctx, id)
}

// GetByBatchID retrieves all deliveries in a batch
func (s *SendService) GetByBatchID(ctx context.Context, batchID uuid.UUID) ([]*domain.Delivery, error) {
	return s.deliveryRepo.GetByBatchID(ctx, batchID)
}

// List lists deliveries with filters
func (s *SendService) List(ctx context.Context, filter domain.DeliveryFilter) (*domain.DeliveryListResult, error) {
	return s.deliveryRepo.List(ctx, filter)
}

// Cancel cancels a delivery that is still waiting in the queue
func (s *SendService) Cancel(ctx context.Context, id uuid.UUID) error {
	delivery, err := s.deliveryRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !delivery.CanCancel() {
		return domain.ErrCannotCancel
	}

	delivery.MarkAsCancelled()

	if err := s.deliveryRepo.Update(ctx, delivery); err != nil {
		return fmt.Errorf("failed to cancel delivery: %w", err)
	}

	s.broadcastStatus(delivery)

	s.logger.Info("delivery cancelled",
		"delivery_id", id,
	)

	return nil
}

// broadcastStatus broadcasts status update via WebSocket
func (s *SendService) broadcastStatus(delivery *domain.Delivery) {
	if s.statusBroadcast != nil {
		s.statusBroadcast(delivery)
	}
}
