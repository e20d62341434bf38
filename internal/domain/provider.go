package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/insider-one/mailcourier/internal/template"
)

// ProviderKind identifies a provider integration
type ProviderKind string

const (
	KindMailgun  ProviderKind = "mailgun"
	KindPostmark ProviderKind = "postmark"
	KindResend   ProviderKind = "resend"
	KindCustom   ProviderKind = "custom"
)

func (k ProviderKind) IsValid() bool {
	switch k {
	case KindMailgun, KindPostmark, KindResend, KindCustom:
		return true
	}
	return false
}

// IsPreset reports whether the kind ships with built-in dispatch defaults
func (k ProviderKind) IsPreset() bool {
	return k.IsValid() && k != KindCustom
}

// AuthType identifies how credentials are attached to an outbound request
type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthCustom AuthType = "custom"
)

func (a AuthType) IsValid() bool {
	switch a {
	case AuthAPIKey, AuthBasic, AuthBearer, AuthCustom:
		return true
	}
	return false
}

// DefaultBearerPrefix is prepended to the credential key for bearer auth
// when no explicit prefix is configured.
const DefaultBearerPrefix = "Bearer "

// AuthConfig describes the authentication scheme of a dispatch description.
// HeaderName applies to api_key, Prefix to bearer.
type AuthConfig struct {
	Type       AuthType `json:"type"`
	HeaderName string   `json:"header_name,omitempty"`
	Prefix     string   `json:"prefix,omitempty"`
}

// Credentials holds provider secret material. Secret is optional and carries
// scheme-specific extras (basic auth password, mailgun sending domain).
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret,omitempty"`
}

// Redacted returns a copy with the secret material masked for listings
func (c Credentials) Redacted() Credentials {
	return Credentials{
		Key:    maskSecret(c.Key),
		Secret: maskSecret(c.Secret),
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Provider represents a registered email provider. Preset kinds carry
// built-in dispatch defaults; the endpoint, method, headers, authentication,
// payload template and field mappings on the record override them. Custom
// kinds must describe dispatch fully themselves.
type Provider struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Kind         ProviderKind `json:"kind"`
	Credentials  Credentials  `json:"credentials"`
	DailyQuota   int          `json:"daily_quota"`
	UsedToday    int          `json:"used_today"`
	QuotaResetAt *time.Time   `json:"quota_reset_at,omitempty"`
	IsActive     bool         `json:"is_active"`

	Endpoint        string            `json:"endpoint,omitempty"`
	Method          string            `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Auth            *AuthConfig       `json:"authentication,omitempty"`
	PayloadTemplate *template.Value   `json:"payload_template,omitempty"`
	FieldMappings   map[string]string `json:"field_mappings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewProvider(name string, kind ProviderKind, creds Credentials, dailyQuota int) *Provider {
	now := time.Now().UTC()
	return &Provider{
		ID:          uuid.New(),
		Name:        name,
		Kind:        kind,
		Credentials: creds,
		DailyQuota:  dailyQuota,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasTemplate reports whether the record carries an explicit payload template
func (p *Provider) HasTemplate() bool {
	return p.PayloadTemplate != nil && !p.PayloadTemplate.IsNull()
}

// Redacted returns a copy safe for listing responses
func (p *Provider) Redacted() *Provider {
	out := *p
	out.Credentials = p.Credentials.Redacted()
	return &out
}

// ValidMethod reports whether m is an allowed dispatch method
func ValidMethod(m string) bool {
	switch strings.ToUpper(m) {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

type ProviderFilter struct {
	Kind     *ProviderKind
	IsActive *bool
}

type ProviderRepository interface {
	Create(ctx context.Context, provider *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	List(ctx context.Context, filter ProviderFilter) ([]*Provider, error)
	ListActive(ctx context.Context) ([]*Provider, error)
	Update(ctx context.Context, provider *Provider) error
	Delete(ctx context.Context, id uuid.UUID) error
}
