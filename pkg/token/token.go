package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"pipelinehub/pkg/problems"
)

// Failure reasons. Their text is echoed to the caller after "invalid token: ";
// the underlying library error is not.
var (
	ErrMalformed   error = problems.NewReason("malformed token")
	ErrSignature   error = problems.NewReason("signature verification failed")
	ErrExpired     error = problems.NewReason("token expired")
	ErrNotYetValid error = problems.NewReason("token not yet valid")
	ErrAudience    error = problems.NewReason("audience mismatch")
	ErrIssuer      error = problems.NewReason("issuer mismatch")
	ErrClaims      error = problems.NewReason("invalid claims")
)

// Claims is the verified payload of a token.
type Claims map[string]any

// String returns claim name as a string, or "" when absent or not a string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Header is the unverified part of a token needed to pick a key.
type Header struct {
	KeyID     string
	Algorithm string
}

// Bearer extracts the token from an Authorization header value.
func Bearer(authz string) (string, error) {
	if strings.TrimSpace(authz) == "" {
		return "", problems.New(problems.MissingCredentials, "Missing Authorization header", nil)
	}
	scheme, raw, ok := strings.Cut(strings.TrimSpace(authz), " ")
	raw = strings.TrimSpace(raw)
	if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" || strings.ContainsAny(raw, " \t") {
		return "", problems.New(problems.MissingCredentials, "Malformed Authorization header", nil)
	}
	return raw, nil
}

// Inspect decodes the protected header without verifying anything.
func Inspect(raw string) (Header, error) {
	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return Header{}, invalid(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return Header{}, invalid(fmt.Errorf("%w: expected one signature, got %d", ErrMalformed, len(sigs)))
	}
	h := sigs[0].ProtectedHeaders()
	return Header{KeyID: h.KeyID(), Algorithm: h.Algorithm().String()}, nil
}

// Validator verifies tokens issued for one audience.
type Validator struct {
	Audience string
	Issuer   string // optional
	Skew     time.Duration
	Clock    jwt.Clock // nil means wall clock
}

// Validate checks the RS256 signature under key, exp/nbf and aud (plus iss when set)
// and returns the decoded payload.
func (v *Validator) Validate(raw string, key jwk.Key) (Claims, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.RS256, key),
		jwt.WithValidate(true),
		jwt.WithAudience(v.Audience),
		jwt.WithAcceptableSkew(v.Skew),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Clock != nil {
		opts = append(opts, jwt.WithClock(v.Clock))
	}
	if _, err := jwt.Parse([]byte(raw), opts...); err != nil {
		return nil, invalid(classify(err))
	}

	// jwt.Token normalizes registered claims; callers get the payload as issued.
	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return nil, invalid(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	var claims Claims
	if err := json.Unmarshal(msg.Payload(), &claims); err != nil {
		return nil, invalid(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotYetValid()):
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrInvalidAudience()):
		return fmt.Errorf("%w: %v", ErrAudience, err)
	case errors.Is(err, jwt.ErrInvalidIssuer()):
		return fmt.Errorf("%w: %v", ErrIssuer, err)
	case jwt.IsValidationError(err):
		return fmt.Errorf("%w: %v", ErrClaims, err)
	}
	return fmt.Errorf("%w: %v", ErrSignature, err)
}

func invalid(err error) error {
	return problems.New(problems.TokenValidation, "invalid token", err)
}
