package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddress_Format(t *testing.T) {
	tests := []struct {
		name    string
		address Address
		want    string
	}{
		{"name and email", Address{Name: "Ada Lovelace", Email: "ada@example.com"}, "Ada Lovelace <ada@example.com>"},
		{"email only", Address{Email: "ada@example.com"}, "ada@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.address.Format())
		})
	}
}

func TestSendRequest_ForRecipient(t *testing.T) {
	req := SendRequest{
		Sender: Address{Email: "from@example.com"},
		Recipients: []Address{
			{Email: "a@example.com"},
			{Email: "b@example.com"},
		},
		Subject: "Hello",
	}

	narrowed := req.ForRecipient(req.Recipients[1])

	assert.Equal(t, []Address{{Email: "b@example.com"}}, narrowed.Recipients)
	assert.Equal(t, req.Subject, narrowed.Subject)
	// The original keeps both recipients.
	assert.Len(t, req.Recipients, 2)
}

func TestDeliveryStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status DeliveryStatus
		want   bool
	}{
		{"queued not terminal", DeliveryQueued, false},
		{"sending not terminal", DeliverySending, false},
		{"sent terminal", DeliverySent, true},
		{"rejected terminal", DeliveryRejected, true},
		{"failed terminal", DeliveryFailed, true},
		{"cancelled terminal", DeliveryCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestNewDelivery(t *testing.T) {
	req := SendRequest{
		Sender:     Address{Email: "from@example.com"},
		Recipients: []Address{{Name: "Bob", Email: "bob@example.com"}},
		Subject:    "Welcome",
		Text:       "hi",
	}

	d := NewDelivery(req)

	assert.NotNil(t, d)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "bob@example.com", d.Recipient)
	assert.Equal(t, "Welcome", d.Subject)
	assert.Equal(t, DeliveryQueued, d.Status)
	assert.Equal(t, 0, d.Attempts)
	assert.NotZero(t, d.CreatedAt)
}

func TestDelivery_CanCancel(t *testing.T) {
	tests := []struct {
		name   string
		status DeliveryStatus
		want   bool
	}{
		{"queued can cancel", DeliveryQueued, true},
		{"sending cannot cancel", DeliverySending, false},
		{"sent cannot cancel", DeliverySent, false},
		{"failed cannot cancel", DeliveryFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelivery(SendRequest{Recipients: []Address{{Email: "x@example.com"}}})
			d.Status = tt.status
			assert.Equal(t, tt.want, d.CanCancel())
		})
	}
}

func TestDelivery_StatusTransitions(t *testing.T) {
	req := SendRequest{Recipients: []Address{{Email: "x@example.com"}}}
	providerID := NewProvider("p", KindResend, Credentials{Key: "k"}, 10).ID

	d := NewDelivery(req)
	originalUpdatedAt := d.UpdatedAt

	// Small delay to ensure time difference
	time.Sleep(time.Millisecond)

	// Test MarkAsSending
	d.MarkAsSending(providerID)
	assert.Equal(t, DeliverySending, d.Status)
	assert.Equal(t, &providerID, d.ProviderID)
	assert.Equal(t, 1, d.Attempts)
	assert.True(t, d.UpdatedAt.After(originalUpdatedAt))

	// Test MarkAsSent
	d.MarkAsSent("msg-123", 202)
	assert.Equal(t, DeliverySent, d.Status)
	assert.Equal(t, "msg-123", *d.ProviderMessageID)
	assert.Equal(t, 202, *d.HTTPStatus)
	assert.NotNil(t, d.SentAt)

	// Sent without a message id leaves the field unset
	d2 := NewDelivery(req)
	d2.MarkAsSent("", 200)
	assert.Nil(t, d2.ProviderMessageID)

	// Test MarkAsRejected
	d3 := NewDelivery(req)
	d3.MarkAsRejected(422, `{"error":"invalid recipient"}`)
	assert.Equal(t, DeliveryRejected, d3.Status)
	assert.Equal(t, 422, *d3.HTTPStatus)
	assert.Equal(t, `{"error":"invalid recipient"}`, *d3.ErrorMessage)

	// Test MarkAsFailed
	d4 := NewDelivery(req)
	d4.MarkAsFailed("max retries exceeded")
	assert.Equal(t, DeliveryFailed, d4.Status)
	assert.Equal(t, "max retries exceeded", *d4.ErrorMessage)

	// Test MarkAsCancelled and MarkAsQueued
	d5 := NewDelivery(req)
	d5.MarkAsCancelled()
	assert.Equal(t, DeliveryCancelled, d5.Status)

	d6 := NewDelivery(req)
	d6.MarkAsSending(providerID)
	d6.MarkAsQueued()
	assert.Equal(t, DeliveryQueued, d6.Status)
	assert.Equal(t, 1, d6.Attempts)
}
