package middleware

import (
	"context"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"pipelinehub/pkg/problems"
	"pipelinehub/pkg/tenants"
	"pipelinehub/pkg/token"
)

// KeyResolver returns the verification key for a token's kid.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (jwk.Key, error)
}

// Authenticate validates the bearer token, derives the caller's tenant and stores the
// Caller in the request context. Any failure ends the request via Fail.
func Authenticate(keys KeyResolver, v *token.Validator, log *zap.SugaredLogger, strict bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := authenticate(r, keys, v)
			if err != nil {
				Fail(w, r, log, err, strict)
				return
			}
			log.Debugw("caller authenticated", "reqid", RequestIDFrom(r.Context()), "tenant", caller.TenantID)
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func authenticate(r *http.Request, keys KeyResolver, v *token.Validator) (tenants.Caller, error) {
	raw, err := token.Bearer(r.Header.Get("Authorization"))
	if err != nil {
		return tenants.Caller{}, err
	}
	hdr, err := token.Inspect(raw)
	if err != nil {
		return tenants.Caller{}, err
	}
	key, err := keys.Resolve(r.Context(), hdr.KeyID)
	if err != nil {
		return tenants.Caller{}, err
	}
	claims, err := v.Validate(raw, key)
	if err != nil {
		return tenants.Caller{}, err
	}
	return tenants.Resolve(claims)
}

// Fail logs err with its kind, counts it and writes the error response.
func Fail(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, err error, strict bool) {
	kind := problems.KindOf(err)
	requestFailures.WithLabelValues(string(kind)).Inc()
	log.Errorw("request failed", "reqid", RequestIDFrom(r.Context()), "kind", kind, "err", err)
	problems.Write(w, err, strict)
}
