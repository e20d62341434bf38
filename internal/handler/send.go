package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/service"
)

// SendHandler handles send submissions and delivery queries
type SendHandler struct {
	service  *service.SendService
	validate *validator.Validate
}

// NewSendHandler creates a new SendHandler
func NewSendHandler(service *service.SendService) *SendHandler {
	return &SendHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterSendRoutes registers the send submission route
func (h *SendHandler) RegisterSendRoutes(r chi.Router) {
	r.Post("/", h.Send)
}

// RegisterDeliveryRoutes registers delivery query routes
func (h *SendHandler) RegisterDeliveryRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.GetByID)
	r.Get("/batch/{batchId}", h.GetByBatchID)
	r.Delete("/{id}", h.Cancel)
}

// AddressPayload is a named email address
type AddressPayload struct {
	Name  string `json:"name,omitempty" example:"Ada Lovelace"`
	Email string `json:"email" validate:"required,email" example:"ada@example.com"`
}

// SendEmailRequest represents a request to send an email
// @Description Request to send an email to one or more recipients
type SendEmailRequest struct {
	Sender     AddressPayload   `json:"sender" validate:"required"`
	Recipients []AddressPayload `json:"recipients" validate:"required,min=1,max=1000,dive"`
	Subject    string           `json:"subject" validate:"required" example:"Welcome aboard"`
	HTML       string           `json:"html,omitempty" example:"<h1>Welcome</h1>"`
	Text       string           `json:"text,omitempty" example:"Welcome"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	ProviderID *uuid.UUID       `json:"provider_id,omitempty"`
}

// sendRequest converts the payload into the canonical send request
func (r SendEmailRequest) sendRequest() domain.SendRequest {
	recipients := make([]domain.Address, len(r.Recipients))
	for i, rcpt := range r.Recipients {
		recipients[i] = domain.Address{Name: rcpt.Name, Email: rcpt.Email}
	}

	return domain.SendRequest{
		Sender:     domain.Address{Name: r.Sender.Name, Email: r.Sender.Email},
		Recipients: recipients,
		Subject:    r.Subject,
		HTML:       r.HTML,
		Text:       r.Text,
		Metadata:   r.Metadata,
	}
}

// Send accepts a send request and fans it out into queued deliveries
// @Summary Send email
// @Description Submit a send request. One delivery per recipient is queued; all deliveries share a batch ID. An optional provider_id pins every delivery to that provider.
// @Tags send
// @Accept json
// @Produce json
// @Param request body SendEmailRequest true "Send request"
// @Success 202 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Failure 503 {object} Response
// @Router /api/v1/send [post]
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	base := req.sendRequest()

	deliveries, err := h.service.Submit(r.Context(), service.SubmitRequest{
		Sender:     base.Sender,
		Recipients: base.Recipients,
		Subject:    base.Subject,
		HTML:       base.HTML,
		Text:       base.Text,
		Metadata:   base.Metadata,
		ProviderID: req.ProviderID,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusAccepted, map[string]any{
		"batch_id":   deliveries[0].BatchID,
		"count":      len(deliveries),
		"deliveries": deliveries,
	})
}

// List lists deliveries with filters
// @Summary List deliveries
// @Description List deliveries with optional filters and pagination
// @Tags deliveries
// @Produce json
// @Param status query string false "Filter by status"
// @Param provider_id query string false "Filter by provider ID"
// @Param batch_id query string false "Filter by batch ID"
// @Param start_date query string false "Filter by start date (RFC3339)"
// @Param end_date query string false "Filter by end date (RFC3339)"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} Response{data=domain.DeliveryListResult}
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/deliveries [get]
func (h *SendHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.DeliveryFilter{
		Page:     1,
		PageSize: 20,
	}

	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.DeliveryStatus(status)
		if !s.IsValid() {
			JSONError(w, http.StatusBadRequest, "INVALID_STATUS", "Invalid delivery status", nil)
			return
		}
		filter.Status = &s
	}

	if providerIDStr := r.URL.Query().Get("provider_id"); providerIDStr != "" {
		providerID, err := uuid.Parse(providerIDStr)
		if err != nil {
			JSONError(w, http.StatusBadRequest, "INVALID_PROVIDER_ID", "Invalid provider ID", nil)
			return
		}
		filter.ProviderID = &providerID
	}

	if batchIDStr := r.URL.Query().Get("batch_id"); batchIDStr != "" {
		batchID, err := uuid.Parse(batchIDStr)
		if err != nil {
			JSONError(w, http.StatusBadRequest, "INVALID_BATCH_ID", "Invalid batch ID", nil)
			return
		}
		filter.BatchID = &batchID
	}

	if startDateStr := r.URL.Query().Get("start_date"); startDateStr != "" {
		startDate, err := time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			JSONError(w, http.StatusBadRequest, "INVALID_START_DATE", "Invalid start date format (use RFC3339)", nil)
			return
		}
		filter.StartDate = &startDate
	}

	if endDateStr := r.URL.Query().Get("end_date"); endDateStr != "" {
		endDate, err := time.Parse(time.RFC3339, endDateStr)
		if err != nil {
			JSONError(w, http.StatusBadRequest, "INVALID_END_DATE", "Invalid end date format (use RFC3339)", nil)
			return
		}
		filter.EndDate = &endDate
	}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			JSONError(w, http.StatusBadRequest, "INVALID_PAGE", "Invalid page number", nil)
			return
		}
		filter.Page = page
	}

	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		pageSize, err := strconv.Atoi(pageSizeStr)
		if err != nil || pageSize < 1 || pageSize > 100 {
			JSONError(w, http.StatusBadRequest, "INVALID_PAGE_SIZE", "Page size must be between 1 and 100", nil)
			return
		}
		filter.PageSize = pageSize
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// GetByID retrieves a delivery by ID
// @Summary Get delivery by ID
// @Description Get a delivery by its ID
// @Tags deliveries
// @Produce json
// @Param id path string true "Delivery ID"
// @Success 200 {object} Response{data=domain.Delivery}
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/deliveries/{id} [get]
func (h *SendHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid delivery ID", nil)
		return
	}

	delivery, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, delivery)
}

// GetByBatchID retrieves all deliveries in a batch
// @Summary Get deliveries by batch ID
// @Description Get all deliveries in a batch
// @Tags deliveries
// @Produce json
// @Param batchId path string true "Batch ID"
// @Success 200 {object} Response{data=[]domain.Delivery}
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/deliveries/batch/{batchId} [get]
func (h *SendHandler) GetByBatchID(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchId"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid batch ID", nil)
		return
	}

	deliveries, err := h.service.GetByBatchID(r.Context(), batchID)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"batch_id":   batchID,
		"count":      len(deliveries),
		"deliveries": deliveries,
	})
}

// Cancel cancels a delivery that is still queued
// @Summary Cancel delivery
// @Description Cancel a delivery while it is still waiting in the queue
// @Tags deliveries
// @Produce json
// @Param id path string true "Delivery ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/deliveries/{id} [delete]
func (h *SendHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid delivery ID", nil)
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": "Delivery cancelled successfully",
	})
}
