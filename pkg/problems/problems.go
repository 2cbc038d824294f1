package problems

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request failure.
type Kind string

const (
	MissingCredentials Kind = "missing_credentials"
	KeyResolution      Kind = "key_resolution"
	TokenValidation    Kind = "token_validation"
	IdentityExtraction Kind = "identity_extraction"
	TenantDerivation   Kind = "tenant_derivation"
	StorageAccess      Kind = "storage_access"
	Unknown            Kind = "unknown"
)

// Error is a classified failure. Msg is safe to return to the caller, Err carries the
// cause and is only logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Reason is a cause whose text may be shown to the caller. Declare sentinels with
// NewReason when the kind of failure is worth echoing in the response body.
type Reason struct{ text string }

func NewReason(text string) *Reason { return &Reason{text: text} }

func (r *Reason) Error() string { return r.text }

// New builds a classified error.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Unknown
}

// Status maps a kind to an HTTP status. Unless strict is set every failure is a 500.
func Status(kind Kind, strict bool) int {
	if !strict {
		return http.StatusInternalServerError
	}
	switch kind {
	case MissingCredentials, TokenValidation:
		return http.StatusUnauthorized
	case IdentityExtraction, TenantDerivation:
		return http.StatusForbidden
	case KeyResolution, StorageAccess:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Public returns the caller-facing message for err: the Msg of its first *Error, plus
// the first Reason in that error's cause chain. Everything else stays in the logs.
func Public(err error) string {
	var pe *Error
	if !errors.As(err, &pe) || pe.Msg == "" {
		return "internal error"
	}
	var r *Reason
	if errors.As(pe.Err, &r) {
		return pe.Msg + ": " + r.Error()
	}
	return pe.Msg
}

// Write renders err as a plain-text error response.
func Write(w http.ResponseWriter, err error, strict bool) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(Status(KindOf(err), strict))
	_, _ = fmt.Fprintf(w, "An error occurred: %s", Public(err))
}
