package dispatch

import (
	"fmt"
	"net/http"

	"github.com/insider-one/mailcourier/internal/domain"
)

// preset describes the built-in dispatch defaults of a provider kind. Every
// field can be overridden by the provider record. transformCreds, when set,
// reshapes the operator's credentials for the wire scheme and is skipped
// when the record overrides the authentication descriptor.
type preset struct {
	resolveEndpoint func(p *domain.Provider) (string, error)
	method          string
	headers         map[string]string
	auth            domain.AuthConfig
	transformCreds  func(c domain.Credentials) domain.Credentials
	fieldMappings   map[string]string
}

func presetFor(kind domain.ProviderKind) (preset, bool) {
	p, ok := presets[kind]
	return p, ok
}

var presets = map[domain.ProviderKind]preset{
	// Mailgun posts a form-encoded flat payload and signs with basic auth,
	// username is the literal "api". The sending domain lives in the
	// credential secret and becomes part of the endpoint path.
	domain.KindMailgun: {
		resolveEndpoint: func(p *domain.Provider) (string, error) {
			if p.Credentials.Key == "" {
				return "", domain.NewConfigError("credentials.key", "mailgun requires the private api key")
			}
			if p.Credentials.Secret == "" {
				return "", domain.NewConfigError("credentials.secret", "mailgun requires the sending domain in the credential secret")
			}
			return fmt.Sprintf("https://api.mailgun.net/v3/%s/messages", p.Credentials.Secret), nil
		},
		method: http.MethodPost,
		headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		auth: domain.AuthConfig{Type: domain.AuthBasic},
		transformCreds: func(c domain.Credentials) domain.Credentials {
			return domain.Credentials{Key: "api", Secret: c.Key}
		},
		fieldMappings: map[string]string{},
	},

	// Postmark takes flat JSON with PascalCase field names and a server
	// token header.
	domain.KindPostmark: {
		resolveEndpoint: staticEndpoint("https://api.postmarkapp.com/email"),
		method:          http.MethodPost,
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		auth: domain.AuthConfig{Type: domain.AuthAPIKey, HeaderName: "X-Postmark-Server-Token"},
		fieldMappings: map[string]string{
			"from":    "From",
			"to":      "To",
			"subject": "Subject",
			"html":    "HtmlBody",
			"text":    "TextBody",
		},
	},

	// Resend takes the canonical shape as-is with a bearer token.
	domain.KindResend: {
		resolveEndpoint: staticEndpoint("https://api.resend.com/emails"),
		method:          http.MethodPost,
		headers: map[string]string{
			"Content-Type": "application/json",
		},
		auth:          domain.AuthConfig{Type: domain.AuthBearer},
		fieldMappings: map[string]string{},
	},
}

func staticEndpoint(u string) func(*domain.Provider) (string, error) {
	return func(*domain.Provider) (string, error) { return u, nil }
}
