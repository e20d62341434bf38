package dispatch

import (
	"github.com/insider-one/mailcourier/internal/domain"
)

// Validator performs dry-run resolution for operator inspection. It runs the
// same resolver the dispatcher runs, so the returned request is byte-for-byte
// what a live dispatch would put on the wire. Nothing is sent and quota is
// untouched.
type Validator struct {
	resolver *Resolver
}

// NewValidator creates a new Validator
func NewValidator(resolver *Resolver) *Validator {
	return &Validator{resolver: resolver}
}

// Validate returns the would-be outbound request, or the same
// domain.ConfigError a live dispatch would produce.
func (v *Validator) Validate(provider *domain.Provider, req *domain.SendRequest) (*domain.OutboundRequest, error) {
	return v.resolver.Resolve(provider, req)
}
