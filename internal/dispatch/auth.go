// Package dispatch turns provider records and send requests into outbound
// HTTP calls: resolving the request, applying authentication, guarding the
// daily quota and executing the attempt. The resolver is pure, so the
// dry-run validator and the live dispatcher produce byte-identical requests.
package dispatch

import (
	"encoding/base64"
	"fmt"

	"github.com/insider-one/mailcourier/internal/domain"
)

// ApplyAuth returns a copy of req with the credential attached according to
// the descriptor. The input request, descriptor and credentials are never
// modified. Missing required fields fail with a domain.ConfigError naming
// the field.
func ApplyAuth(req *domain.OutboundRequest, auth domain.AuthConfig, creds domain.Credentials) (*domain.OutboundRequest, error) {
	out := req.Clone()

	switch auth.Type {
	case domain.AuthAPIKey:
		if auth.HeaderName == "" {
			return nil, domain.NewConfigError("authentication.header_name", "api_key authentication requires a header name")
		}
		if creds.Key == "" {
			return nil, domain.NewConfigError("credentials.key", "api_key authentication requires a credential key")
		}
		out.Headers[auth.HeaderName] = creds.Key

	case domain.AuthBasic:
		if creds.Key == "" {
			return nil, domain.NewConfigError("credentials.key", "basic authentication requires a username")
		}
		if creds.Secret == "" {
			return nil, domain.NewConfigError("credentials.secret", "basic authentication requires a password")
		}
		token := base64.StdEncoding.EncodeToString([]byte(creds.Key + ":" + creds.Secret))
		out.Headers["Authorization"] = "Basic " + token

	case domain.AuthBearer:
		if creds.Key == "" {
			return nil, domain.NewConfigError("credentials.key", "bearer authentication requires a credential key")
		}
		prefix := auth.Prefix
		if prefix == "" {
			prefix = domain.DefaultBearerPrefix
		}
		out.Headers["Authorization"] = prefix + creds.Key

	case domain.AuthCustom:
		// The static headers map carries whatever the operator configured.

	default:
		return nil, domain.NewConfigError("authentication.type", fmt.Sprintf("unknown authentication type %q", auth.Type))
	}

	return out, nil
}
