package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/template"
)

func unsignedRequest() *domain.OutboundRequest {
	return &domain.OutboundRequest{
		Method: "POST",
		URL:    "https://api.example.com/send",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: template.ObjectValue(map[string]template.Value{
			"subject": template.StringValue("Hello"),
		}),
	}
}

func TestApplyAuth_APIKey(t *testing.T) {
	req := unsignedRequest()

	signed, err := ApplyAuth(req,
		domain.AuthConfig{Type: domain.AuthAPIKey, HeaderName: "X-Api-Token"},
		domain.Credentials{Key: "tok-123"},
	)

	require.NoError(t, err)
	assert.Equal(t, "tok-123", signed.Headers["X-Api-Token"])
	assert.Equal(t, "application/json", signed.Headers["Content-Type"])
}

func TestApplyAuth_Basic(t *testing.T) {
	req := unsignedRequest()

	signed, err := ApplyAuth(req,
		domain.AuthConfig{Type: domain.AuthBasic},
		domain.Credentials{Key: "user", Secret: "pass"},
	)

	require.NoError(t, err)
	assert.Equal(t, "Basic dXNlcjpwYXNz", signed.Headers["Authorization"])
}

func TestApplyAuth_Bearer(t *testing.T) {
	t.Run("default prefix", func(t *testing.T) {
		signed, err := ApplyAuth(unsignedRequest(),
			domain.AuthConfig{Type: domain.AuthBearer},
			domain.Credentials{Key: "tok-456"},
		)

		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-456", signed.Headers["Authorization"])
	})

	t.Run("custom prefix", func(t *testing.T) {
		signed, err := ApplyAuth(unsignedRequest(),
			domain.AuthConfig{Type: domain.AuthBearer, Prefix: "Token "},
			domain.Credentials{Key: "tok-456"},
		)

		require.NoError(t, err)
		assert.Equal(t, "Token tok-456", signed.Headers["Authorization"])
	})
}

func TestApplyAuth_Custom(t *testing.T) {
	req := unsignedRequest()
	req.Headers["X-Custom-Auth"] = "preconfigured"

	signed, err := ApplyAuth(req,
		domain.AuthConfig{Type: domain.AuthCustom},
		domain.Credentials{Key: "ignored"},
	)

	require.NoError(t, err)
	assert.Equal(t, req.Headers, signed.Headers)
	assert.Empty(t, signed.Headers["Authorization"])
}

func TestApplyAuth_MissingFields(t *testing.T) {
	tests := []struct {
		name      string
		auth      domain.AuthConfig
		creds     domain.Credentials
		wantField string
	}{
		{
			name:      "api_key without header name",
			auth:      domain.AuthConfig{Type: domain.AuthAPIKey},
			creds:     domain.Credentials{Key: "tok"},
			wantField: "authentication.header_name",
		},
		{
			name:      "api_key without key",
			auth:      domain.AuthConfig{Type: domain.AuthAPIKey, HeaderName: "X-Api-Token"},
			creds:     domain.Credentials{},
			wantField: "credentials.key",
		},
		{
			name:      "basic without username",
			auth:      domain.AuthConfig{Type: domain.AuthBasic},
			creds:     domain.Credentials{Secret: "pass"},
			wantField: "credentials.key",
		},
		{
			name:      "basic without password",
			auth:      domain.AuthConfig{Type: domain.AuthBasic},
			creds:     domain.Credentials{Key: "user"},
			wantField: "credentials.secret",
		},
		{
			name:      "bearer without key",
			auth:      domain.AuthConfig{Type: domain.AuthBearer},
			creds:     domain.Credentials{},
			wantField: "credentials.key",
		},
		{
			name:      "unknown type",
			auth:      domain.AuthConfig{Type: domain.AuthType("hmac")},
			creds:     domain.Credentials{Key: "tok"},
			wantField: "authentication.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := ApplyAuth(unsignedRequest(), tt.auth, tt.creds)

			assert.Nil(t, signed)
			var cfgErr domain.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestApplyAuth_DoesNotMutateInput(t *testing.T) {
	req := unsignedRequest()

	signed, err := ApplyAuth(req,
		domain.AuthConfig{Type: domain.AuthBearer},
		domain.Credentials{Key: "tok"},
	)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", signed.Headers["Authorization"])

	_, ok := req.Headers["Authorization"]
	assert.False(t, ok, "input request headers were modified")
	assert.Equal(t, map[string]string{"Content-Type": "application/json"}, req.Headers)
}
