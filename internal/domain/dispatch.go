package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/insider-one/mailcourier/internal/template"
)

// OutboundRequest is the fully resolved HTTP request for one dispatch
// attempt. The body stays a value tree until the wire encoding is needed, so
// the validator can show it and the executor can send it from the same
// source.
type OutboundRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    template.Value    `json:"body"`
}

// Clone returns a copy whose header map is independent of the original.
// The body tree is shared; Value trees are read-only after construction.
func (r *OutboundRequest) Clone() *OutboundRequest {
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	return &OutboundRequest{
		Method:  r.Method,
		URL:     r.URL,
		Headers: headers,
		Body:    r.Body,
	}
}

// HeaderValue returns the named header, matching case-insensitively
func (r *OutboundRequest) HeaderValue(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// EncodedBody returns the deterministic byte encoding of the body: compact
// JSON with sorted object keys, or form encoding when the Content-Type header
// says urlencoded. Equal requests always encode to equal bytes.
func (r *OutboundRequest) EncodedBody() ([]byte, error) {
	if r.Body.IsNull() {
		return nil, nil
	}
	if strings.Contains(strings.ToLower(r.HeaderValue("Content-Type")), "application/x-www-form-urlencoded") {
		return encodeForm(r.Body)
	}
	return json.Marshal(r.Body)
}

func encodeForm(body template.Value) ([]byte, error) {
	if body.Kind() != template.Object {
		return nil, fmt.Errorf("form encoding requires an object body, got %s", body.Kind())
	}
	form := url.Values{}
	for key, field := range body.Fields() {
		switch field.Kind() {
		case template.Null:
			// omitted
		case template.Array:
			for _, el := range field.Items() {
				form.Add(key, el.Text())
			}
		default:
			form.Add(key, field.Text())
		}
	}
	return []byte(form.Encode()), nil
}

// HTTPResponse is the raw result of an executed dispatch attempt
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports whether the status code is 2xx
func (r *HTTPResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPExecutor performs the network call for a dispatch attempt. A non-2xx
// status is a response, not an error; an error means no HTTP response was
// obtained at all.
type HTTPExecutor interface {
	Execute(ctx context.Context, req *OutboundRequest) (*HTTPResponse, error)
}

// OutcomeStatus tags the terminal result of a dispatch attempt
type OutcomeStatus string

const (
	OutcomeSent           OutcomeStatus = "sent"
	OutcomeRejected       OutcomeStatus = "rejected"
	OutcomeQuotaExhausted OutcomeStatus = "quota_exhausted"
	OutcomeConfigError    OutcomeStatus = "config_error"
	OutcomeTransportError OutcomeStatus = "transport_error"
)

// DispatchOutcome is the single terminal result of one dispatch attempt.
// Exactly one is produced per attempt; which extra fields are set depends on
// the status.
type DispatchOutcome struct {
	Status            OutcomeStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	HTTPStatus        int           `json:"http_status,omitempty"`
	ResponseBody      string        `json:"response_body,omitempty"`
	Field             string        `json:"field,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

func SentOutcome(messageID string, httpStatus int) DispatchOutcome {
	return DispatchOutcome{
		Status:            OutcomeSent,
		ProviderMessageID: messageID,
		HTTPStatus:        httpStatus,
	}
}

func RejectedOutcome(httpStatus int, body string) DispatchOutcome {
	return DispatchOutcome{
		Status:       OutcomeRejected,
		HTTPStatus:   httpStatus,
		ResponseBody: body,
	}
}

func QuotaExhaustedOutcome() DispatchOutcome {
	return DispatchOutcome{Status: OutcomeQuotaExhausted}
}

// ConfigErrorOutcome extracts the offending field when err is a ConfigError
func ConfigErrorOutcome(err error) DispatchOutcome {
	out := DispatchOutcome{Status: OutcomeConfigError, Reason: err.Error()}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		out.Field = cfgErr.Field
		out.Reason = cfgErr.Reason
	}
	return out
}

func TransportErrorOutcome(reason string) DispatchOutcome {
	return DispatchOutcome{Status: OutcomeTransportError, Reason: reason}
}
