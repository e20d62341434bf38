package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/service"
	"github.com/insider-one/mailcourier/internal/template"
)

// ProviderHandler handles provider HTTP requests
type ProviderHandler struct {
	service  *service.ProviderService
	validate *validator.Validate
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(service *service.ProviderService) *ProviderHandler {
	return &ProviderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers provider routes
func (h *ProviderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Register)
	r.Get("/", h.List)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/test", h.Test)
}

// RegisterProviderRequest represents a request to register a provider.
// Preset kinds need only credentials and a quota; custom kinds must carry a
// full dispatch description. Dispatch fields override preset defaults.
// @Description Request to register an email provider
type RegisterProviderRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=100" example:"postmark-main"`
	Kind        domain.ProviderKind `json:"kind" validate:"required,oneof=mailgun postmark resend custom" example:"postmark"`
	Credentials domain.Credentials  `json:"credentials"`
	DailyQuota  int                 `json:"daily_quota" validate:"required,gt=0" example:"10000"`
	IsActive    *bool               `json:"is_active,omitempty"`

	Endpoint        string             `json:"endpoint,omitempty" example:"https://api.postmarkapp.com/email"`
	Method          string             `json:"method,omitempty" validate:"omitempty,oneof=POST PUT PATCH" example:"POST"`
	Headers         map[string]string  `json:"headers,omitempty"`
	Auth            *domain.AuthConfig `json:"authentication,omitempty"`
	PayloadTemplate *template.Value    `json:"payload_template,omitempty"`
	FieldMappings   map[string]string  `json:"field_mappings,omitempty"`
}

// UpdateProviderRequest represents a partial provider update
type UpdateProviderRequest struct {
	Name        *string             `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Credentials *domain.Credentials `json:"credentials,omitempty"`
	DailyQuota  *int                `json:"daily_quota,omitempty" validate:"omitempty,gt=0"`
	IsActive    *bool               `json:"is_active,omitempty"`

	Endpoint        *string            `json:"endpoint,omitempty"`
	Method          *string            `json:"method,omitempty" validate:"omitempty,oneof=POST PUT PATCH"`
	Headers         map[string]string  `json:"headers,omitempty"`
	Auth            *domain.AuthConfig `json:"authentication,omitempty"`
	PayloadTemplate *template.Value    `json:"payload_template,omitempty"`
	FieldMappings   map[string]string  `json:"field_mappings,omitempty"`
}

// Register registers a new provider
// @Summary Register provider
// @Description Register an email provider. The configuration is dry-run resolved before saving.
// @Tags providers
// @Accept json
// @Produce json
// @Param provider body RegisterProviderRequest true "Provider registration"
// @Success 201 {object} Response{data=domain.Provider}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/providers [post]
func (h *ProviderHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterProviderRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	provider, err := h.service.Register(r.Context(), service.RegisterRequest{
		Name:            req.Name,
		Kind:            req.Kind,
		Credentials:     req.Credentials,
		DailyQuota:      req.DailyQuota,
		IsActive:        req.IsActive,
		Endpoint:        req.Endpoint,
		Method:          req.Method,
		Headers:         req.Headers,
		Auth:            req.Auth,
		PayloadTemplate: req.PayloadTemplate,
		FieldMappings:   req.FieldMappings,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusCreated, provider.Redacted())
}

// List lists providers with filters
// @Summary List providers
// @Description List registered providers. Credential material is redacted.
// @Tags providers
// @Produce json
// @Param kind query string false "Filter by kind"
// @Param is_active query bool false "Filter by active flag"
// @Success 200 {object} Response{data=[]domain.Provider}
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/providers [get]
func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter domain.ProviderFilter

	if kind := r.URL.Query().Get("kind"); kind != "" {
		k := domain.ProviderKind(kind)
		if !k.IsValid() {
			JSONError(w, http.StatusBadRequest, "INVALID_KIND", "Invalid provider kind", nil)
			return
		}
		filter.Kind = &k
	}

	if activeStr := r.URL.Query().Get("is_active"); activeStr != "" {
		active := activeStr == "true"
		filter.IsActive = &active
	}

	providers, err := h.service.List(r.Context(), filter)
	if err != nil {
		HandleError(w, err)
		return
	}

	redacted := make([]*domain.Provider, len(providers))
	for i, p := range providers {
		redacted[i] = p.Redacted()
	}

	JSON(w, http.StatusOK, redacted)
}

// GetByID retrieves a provider by ID
// @Summary Get provider by ID
// @Description Get a provider by its ID. Credential material is redacted.
// @Tags providers
// @Produce json
// @Param id path string true "Provider ID"
// @Success 200 {object} Response{data=domain.Provider}
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/providers/{id} [get]
func (h *ProviderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid provider ID", nil)
		return
	}

	provider, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, provider.Redacted())
}

// Update applies a partial update to a provider
// @Summary Update provider
// @Description Update provider configuration, quota or active flag. Quota counters are not client-writable.
// @Tags providers
// @Accept json
// @Produce json
// @Param id path string true "Provider ID"
// @Param provider body UpdateProviderRequest true "Provider update"
// @Success 200 {object} Response{data=domain.Provider}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/providers/{id} [put]
func (h *ProviderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid provider ID", nil)
		return
	}

	var req UpdateProviderRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	provider, err := h.service.Update(r.Context(), id, service.UpdateRequest{
		Name:            req.Name,
		Credentials:     req.Credentials,
		DailyQuota:      req.DailyQuota,
		IsActive:        req.IsActive,
		Endpoint:        req.Endpoint,
		Method:          req.Method,
		Headers:         req.Headers,
		Auth:            req.Auth,
		PayloadTemplate: req.PayloadTemplate,
		FieldMappings:   req.FieldMappings,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, provider.Redacted())
}

// Delete deletes a provider
// @Summary Delete provider
// @Description Delete a provider. Deliveries keep their history.
// @Tags providers
// @Produce json
// @Param id path string true "Provider ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/providers/{id} [delete]
func (h *ProviderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid provider ID", nil)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": "Provider deleted successfully",
	})
}

// Test dry-run resolves a provider configuration
// @Summary Test provider configuration
// @Description Resolve the provider against a sample send request and return the outbound request that a live dispatch would produce. Nothing is sent and no quota is consumed.
// @Tags providers
// @Accept json
// @Produce json
// @Param id path string true "Provider ID"
// @Param request body SendEmailRequest false "Sample send request (canned sample when omitted)"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/providers/{id}/test [post]
func (h *ProviderHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid provider ID", nil)
		return
	}

	var sample *domain.SendRequest
	if r.ContentLength != 0 {
		var req SendEmailRequest
		if err := DecodeJSON(r, &req); err != nil {
			HandleError(w, err)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
			return
		}
		s := req.sendRequest()
		sample = &s
	}

	outbound, err := h.service.Test(r.Context(), id, sample)
	if err != nil {
		HandleError(w, err)
		return
	}

	encoded, err := outbound.EncodedBody()
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"request":      outbound,
		"encoded_body": string(encoded),
	})
}
