package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/template"
)

// Validator dry-run resolves a provider configuration against a send request
type Validator interface {
	Validate(provider *domain.Provider, req *domain.SendRequest) (*domain.OutboundRequest, error)
}

// ProviderService handles provider registration and configuration
type ProviderService struct {
	repo      domain.ProviderRepository
	validator Validator
	logger    *slog.Logger
}

// NewProviderService creates a new ProviderService
func NewProviderService(repo domain.ProviderRepository, validator Validator, logger *slog.Logger) *ProviderService {
	return &ProviderService{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRequest represents a request to register a provider. Preset kinds
// need only name, kind, credentials and quota; custom kinds must also
// describe dispatch. Every dispatch field overrides the preset defaults when
// set.
type RegisterRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=100"`
	Kind        domain.ProviderKind `json:"kind" validate:"required"`
	Credentials domain.Credentials  `json:"credentials"`
	DailyQuota  int                 `json:"daily_quota" validate:"required,gt=0"`
	IsActive    *bool               `json:"is_active,omitempty"`

	Endpoint        string             `json:"endpoint,omitempty"`
	Method          string             `json:"method,omitempty"`
	Headers         map[string]string  `json:"headers,omitempty"`
	Auth            *domain.AuthConfig `json:"authentication,omitempty"`
	PayloadTemplate *template.Value    `json:"payload_template,omitempty"`
	FieldMappings   map[string]string  `json:"field_mappings,omitempty"`
}

// UpdateRequest represents a partial update of a provider. Quota counters
// are owned by the quota store and cannot be set here.
type UpdateRequest struct {
	Name        *string             `json:"name,omitempty"`
	Credentials *domain.Credentials `json:"credentials,omitempty"`
	DailyQuota  *int                `json:"daily_quota,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`

	Endpoint        *string            `json:"endpoint,omitempty"`
	Method          *string            `json:"method,omitempty"`
	Headers         map[string]string  `json:"headers,omitempty"`
	Auth            *domain.AuthConfig `json:"authentication,omitempty"`
	PayloadTemplate *template.Value    `json:"payload_template,omitempty"`
	FieldMappings   map[string]string  `json:"field_mappings,omitempty"`
}

// Register registers a new provider. The configuration is dry-run resolved
// against a sample send request, so a config that cannot produce a
// dispatchable request is rejected here rather than at first dispatch.
func (s *ProviderService) Register(ctx context.Context, req RegisterRequest) (*domain.Provider, error) {
	if !req.Kind.IsValid() {
		return nil, domain.NewValidationError("kind", "invalid provider kind")
	}
	if req.DailyQuota <= 0 {
		return nil, domain.NewValidationError("daily_quota", "daily quota must be positive")
	}

	provider := domain.NewProvider(req.Name, req.Kind, req.Credentials, req.DailyQuota)
	provider.Endpoint = req.Endpoint
	provider.Method = req.Method
	provider.Headers = req.Headers
	provider.Auth = req.Auth
	provider.PayloadTemplate = req.PayloadTemplate
	provider.FieldMappings = req.FieldMappings

	if req.IsActive != nil {
		provider.IsActive = *req.IsActive
	}

	if _, err := s.validator.Validate(provider, sampleSendRequest()); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, provider); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	s.logger.Info("provider registered",
		"provider_id", provider.ID,
		"name", provider.Name,
		"kind", provider.Kind,
	)

	return provider, nil
}

// GetByID retrieves a provider by ID
func (s *ProviderService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Provider, error) {
	return s.repo.GetByID(ctx, id)
}

// List lists providers with filters
func (s *ProviderService) List(ctx context.Context, filter domain.ProviderFilter) ([]*domain.Provider, error) {
	return s.repo.List(ctx, filter)
}

// Update applies a partial update to a provider. The merged configuration is
// dry-run resolved before saving, so updates cannot leave a provider in an
// undispatchable state.
func (s *ProviderService) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*domain.Provider, error) {
	provider, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		provider.Name = *req.Name
	}
	if req.Credentials != nil {
		provider.Credentials = *req.Credentials
	}
	if req.DailyQuota != nil {
		if *req.DailyQuota <= 0 {
			return nil, domain.NewValidationError("daily_quota", "daily quota must be positive")
		}
		provider.DailyQuota = *req.DailyQuota
	}
	if req.IsActive != nil {
		provider.IsActive = *req.IsActive
	}
	if req.Endpoint != nil {
		provider.Endpoint = *req.Endpoint
	}
	if req.Method != nil {
		provider.Method = *req.Method
	}
	if req.Headers != nil {
		provider.Headers = req.Headers
	}
	if req.Auth != nil {
		provider.Auth = req.Auth
	}
	if req.PayloadTemplate != nil {
		provider.PayloadTemplate = req.PayloadTemplate
	}
	if req.FieldMappings != nil {
		provider.FieldMappings = req.FieldMappings
	}

	if _, err := s.validator.Validate(provider, sampleSendRequest()); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, provider); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to update provider: %w", err)
	}

	s.logger.Info("provider updated",
		"provider_id", provider.ID,
	)

	return provider, nil
}

// Delete deletes a provider. Deliveries already assigned to it keep their
// history; the database clears the reference.
func (s *ProviderService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("provider deleted",
		"provider_id", id,
	)

	return nil
}

// Test dry-run resolves the provider against the given send request, or a
// canned sample when none is supplied. The returned request is exactly what
// a live dispatch would send. Nothing is sent and quota is untouched.
func (s *ProviderService) Test(ctx context.Context, id uuid.UUID, req *domain.SendRequest) (*domain.OutboundRequest, error) {
	provider, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req == nil {
		req = sampleSendRequest()
	}

	return s.validator.Validate(provider, req)
}

// sampleSendRequest is the canned request used for registration checks and
// parameterless test calls
func sampleSendRequest() *domain.SendRequest {
	return &domain.SendRequest{
		Sender:     domain.Address{Name: "Mailcourier", Email: "test@mailcourier.local"},
		Recipients: []domain.Address{{Name: "Test Recipient", Email: "recipient@mailcourier.local"}},
		Subject:    "Configuration test",
		HTML:       "<p>This message verifies the provider configuration.</p>",
		Text:       "This message verifies the provider configuration.",
		Metadata:   map[string]any{"test": true},
	}
}
