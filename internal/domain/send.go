package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Address is a named email address
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Format renders the address as "Name <email>", or the bare email when no
// name is set.
func (a Address) Format() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// SendRequest is one outbound email as accepted from callers. Metadata values
// are scalars and are exposed to payload templates under the metadata key.
type SendRequest struct {
	Sender     Address        `json:"sender"`
	Recipients []Address      `json:"recipients"`
	Subject    string         `json:"subject"`
	HTML       string         `json:"html,omitempty"`
	Text       string         `json:"text,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ForRecipient returns a copy narrowed to a single recipient
func (r SendRequest) ForRecipient(rcpt Address) SendRequest {
	out := r
	out.Recipients = []Address{rcpt}
	return out
}

// DeliveryStatus represents the lifecycle state of a delivery
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySending   DeliveryStatus = "sending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryRejected  DeliveryStatus = "rejected"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryQueued, DeliverySending, DeliverySent, DeliveryRejected, DeliveryFailed, DeliveryCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the delivery will see no further transitions
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliverySent, DeliveryRejected, DeliveryFailed, DeliveryCancelled:
		return true
	}
	return false
}

// Delivery tracks a single-recipient send through its lifecycle
type Delivery struct {
	ID                uuid.UUID      `json:"id"`
	BatchID           *uuid.UUID     `json:"batch_id,omitempty"`
	ProviderID        *uuid.UUID     `json:"provider_id,omitempty"`
	Request           SendRequest    `json:"request"`
	Recipient         string         `json:"recipient"`
	Subject           string         `json:"subject"`
	Status            DeliveryStatus `json:"status"`
	Attempts          int            `json:"attempts"`
	HTTPStatus        *int           `json:"http_status,omitempty"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
}

func NewDelivery(req SendRequest) *Delivery {
	now := time.Now().UTC()
	recipient := ""
	if len(req.Recipients) > 0 {
		recipient = req.Recipients[0].Email
	}
	return &Delivery{
		ID:        uuid.New(),
		Request:   req,
		Recipient: recipient,
		Subject:   req.Subject,
		Status:    DeliveryQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (d *Delivery) CanCancel() bool {
	return d.Status == DeliveryQueued
}

// MarkAsSending records the start of a dispatch attempt against a provider
func (d *Delivery) MarkAsSending(providerID uuid.UUID) {
	d.Status = DeliverySending
	d.ProviderID = &providerID
	d.Attempts++
	d.UpdatedAt = time.Now().UTC()
}

// MarkAsSent records a successful dispatch
func (d *Delivery) MarkAsSent(messageID string, httpStatus int) {
	d.Status = DeliverySent
	if messageID != "" {
		d.ProviderMessageID = &messageID
	}
	d.HTTPStatus = &httpStatus
	now := time.Now().UTC()
	d.SentAt = &now
	d.UpdatedAt = now
}

// MarkAsRejected records a provider rejection; the attempt consumed quota
func (d *Delivery) MarkAsRejected(httpStatus int, body string) {
	d.Status = DeliveryRejected
	d.HTTPStatus = &httpStatus
	if body != "" {
		d.ErrorMessage = &body
	}
	d.UpdatedAt = time.Now().UTC()
}

// MarkAsFailed records a terminal failure outside the provider's control flow
func (d *Delivery) MarkAsFailed(errorMsg string) {
	d.Status = DeliveryFailed
	d.ErrorMessage = &errorMsg
	d.UpdatedAt = time.Now().UTC()
}

func (d *Delivery) MarkAsCancelled() {
	d.Status = DeliveryCancelled
	d.UpdatedAt = time.Now().UTC()
}

// MarkAsQueued returns the delivery to the queue for a later attempt
func (d *Delivery) MarkAsQueued() {
	d.Status = DeliveryQueued
	d.UpdatedAt = time.Now().UTC()
}

type DeliveryFilter struct {
	Status     *DeliveryStatus
	ProviderID *uuid.UUID
	BatchID    *uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	PageSize   int
}

type DeliveryListResult struct {
	Deliveries []*Delivery `json:"deliveries"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

type DeliveryRepository interface {
	Create(ctx context.Context, delivery *Delivery) error
	CreateBatch(ctx context.Context, deliveries []*Delivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*Delivery, error)
	GetByBatchID(ctx context.Context, batchID uuid.UUID) ([]*Delivery, error)
	Update(ctx context.Context, delivery *Delivery) error
	List(ctx context.Context, filter DeliveryFilter) (*DeliveryListResult, error)
}
