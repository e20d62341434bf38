package dispatch

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/template"
)

// Resolver turns a provider record and a send request into the outbound HTTP
// request for one dispatch attempt. Resolution is pure: no I/O, no clock, no
// side effects. Providers carrying an explicit payload template are rendered
// through it; preset kinds without one get the canonical flat payload with
// their field mappings applied.
type Resolver struct{}

// NewResolver creates a new Resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve builds the outbound request, or fails with a domain.ConfigError
// naming the offending configuration field.
func (r *Resolver) Resolve(provider *domain.Provider, req *domain.SendRequest) (*domain.OutboundRequest, error) {
	if !provider.Kind.IsValid() {
		return nil, domain.NewConfigError("kind", fmt.Sprintf("unknown provider kind %q", provider.Kind))
	}

	pre, isPreset := presetFor(provider.Kind)

	endpoint := strings.TrimSpace(provider.Endpoint)
	if endpoint == "" && isPreset {
		ep, err := pre.resolveEndpoint(provider)
		if err != nil {
			return nil, err
		}
		endpoint = ep
	}
	if endpoint == "" {
		return nil, domain.NewConfigError("endpoint", "endpoint is required")
	}
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(provider.Method))
	if method == "" {
		method = pre.method
		if method == "" {
			method = http.MethodPost
		}
	}
	if !domain.ValidMethod(method) {
		return nil, domain.NewConfigError("method", fmt.Sprintf("method %q is not allowed", provider.Method))
	}

	headers := make(map[string]string)
	for k, v := range pre.headers {
		headers[k] = v
	}
	for k, v := range provider.Headers {
		headers[k] = v
	}
	if !headerPresent(headers, "Content-Type") {
		headers["Content-Type"] = "application/json"
	}

	body, err := resolveBody(provider, pre, isPreset, req)
	if err != nil {
		return nil, err
	}

	out := &domain.OutboundRequest{
		Method:  method,
		URL:     endpoint,
		Headers: headers,
		Body:    body,
	}

	// Pre-flight the wire encoding so impossible bodies surface here as
	// configuration errors instead of failing mid-dispatch.
	if _, err := out.EncodedBody(); err != nil {
		return nil, domain.NewConfigError("payload_template", err.Error())
	}

	auth := pre.auth
	if provider.Auth != nil {
		auth = *provider.Auth
	} else if !isPreset {
		auth = domain.AuthConfig{Type: domain.AuthCustom}
	}

	creds := provider.Credentials
	if provider.Auth == nil && pre.transformCreds != nil {
		creds = pre.transformCreds(creds)
	}

	return ApplyAuth(out, auth, creds)
}

func resolveBody(provider *domain.Provider, pre preset, isPreset bool, req *domain.SendRequest) (template.Value, error) {
	if provider.HasTemplate() {
		return template.Render(*provider.PayloadTemplate, RenderContext(req)), nil
	}
	if !isPreset {
		return template.Value{}, domain.NewConfigError("payload_template", "custom providers require a payload template")
	}

	mappings := make(map[string]string, len(pre.fieldMappings))
	for k, v := range pre.fieldMappings {
		mappings[k] = v
	}
	for k, v := range provider.FieldMappings {
		mappings[k] = v
	}
	return canonicalPayload(req, mappings), nil
}

// canonicalPayload builds the flat canonical body and renames its keys per
// the field mappings. Empty body parts are omitted.
func canonicalPayload(req *domain.SendRequest, mappings map[string]string) template.Value {
	to := make([]template.Value, 0, len(req.Recipients))
	for _, rcpt := range req.Recipients {
		to = append(to, template.StringValue(rcpt.Format()))
	}

	fields := map[string]template.Value{
		fieldName(mappings, "from"):    template.StringValue(req.Sender.Format()),
		fieldName(mappings, "to"):      template.ArrayValue(to...),
		fieldName(mappings, "subject"): template.StringValue(req.Subject),
	}
	if req.HTML != "" {
		fields[fieldName(mappings, "html")] = template.StringValue(req.HTML)
	}
	if req.Text != "" {
		fields[fieldName(mappings, "text")] = template.StringValue(req.Text)
	}
	return template.ObjectValue(fields)
}

func fieldName(mappings map[string]string, canonical string) string {
	if mapped, ok := mappings[canonical]; ok && mapped != "" {
		return mapped
	}
	return canonical
}

// RenderContext exposes a send request to payload templates: sender,
// recipients, subject, html, text and metadata.
func RenderContext(req *domain.SendRequest) template.Value {
	recipients := make([]template.Value, 0, len(req.Recipients))
	for _, rcpt := range req.Recipients {
		recipients = append(recipients, addressValue(rcpt))
	}
	return template.ObjectValue(map[string]template.Value{
		"sender":     addressValue(req.Sender),
		"recipients": template.ArrayValue(recipients...),
		"subject":    template.StringValue(req.Subject),
		"html":       template.StringValue(req.HTML),
		"text":       template.StringValue(req.Text),
		"metadata":   template.FromAny(req.Metadata),
	})
}

func addressValue(a domain.Address) template.Value {
	return template.ObjectValue(map[string]template.Value{
		"name":  template.StringValue(a.Name),
		"email": template.StringValue(a.Email),
	})
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return domain.NewConfigError("endpoint", fmt.Sprintf("endpoint is not a valid url: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.NewConfigError("endpoint", fmt.Sprintf("endpoint scheme %q is not supported", u.Scheme))
	}
	if u.Host == "" {
		return domain.NewConfigError("endpoint", "endpoint host is missing")
	}
	return nil
}

func headerPresent(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
