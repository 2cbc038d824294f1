package tenants

import (
	"errors"
	"strings"

	"pipelinehub/pkg/problems"
	"pipelinehub/pkg/token"
)

// IdentityClaims are checked in order; the first non-empty string wins.
var IdentityClaims = []string{"preferred_username", "email", "upn"}

var (
	ErrNoIdentity = errors.New("token carries none of preferred_username, email, upn")
	ErrNoAt       = errors.New("identity has no '@'")
	ErrManyAt     = errors.New("identity has more than one '@'")
	ErrNoDot      = errors.New("identity domain has no '.'")
	ErrEmpty      = errors.New("identity domain starts with '.'")
)

// Caller is the authenticated principal of a request.
type Caller struct {
	Identity string // email-like name from the token
	TenantID string // company segment of Identity's domain
}

// IdentityFrom picks the caller's identity string from verified claims.
func IdentityFrom(claims token.Claims) (string, error) {
	for _, name := range IdentityClaims {
		if v := strings.TrimSpace(claims.String(name)); v != "" {
			return v, nil
		}
	}
	return "", problems.New(problems.IdentityExtraction, "Failed to extract identity from token", ErrNoIdentity)
}

// FromIdentity derives the tenant identifier: the text after the '@' up to the next
// '.', case preserved since partition keys compare exactly. user@acme.co.uk yields "acme".
func FromIdentity(identity string) (string, error) {
	_, domain, ok := strings.Cut(identity, "@")
	if !ok {
		return "", derivation(ErrNoAt)
	}
	if strings.Contains(domain, "@") {
		return "", derivation(ErrManyAt)
	}
	company, _, ok := strings.Cut(domain, ".")
	if !ok {
		return "", derivation(ErrNoDot)
	}
	if company == "" {
		return "", derivation(ErrEmpty)
	}
	return company, nil
}

// Resolve runs IdentityFrom then FromIdentity.
func Resolve(claims token.Claims) (Caller, error) {
	identity, err := IdentityFrom(claims)
	if err != nil {
		return Caller{}, err
	}
	tenant, err := FromIdentity(identity)
	if err != nil {
		return Caller{}, err
	}
	return Caller{Identity: identity, TenantID: tenant}, nil
}

func derivation(err error) error {
	return problems.New(problems.TenantDerivation, "Failed to extract company name from email", err)
}
