package jwks

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"pipelinehub/pkg/problems"
)

var (
	ErrKeyNotFound = errors.New("unable to find appropriate key")
	ErrNotRSA      = errors.New("signing key is not an RSA key")
)

// Resolver selects the signing key matching a token's kid.
type Resolver struct {
	src Source
	log *zap.SugaredLogger
}

func NewResolver(src Source, log *zap.SugaredLogger) *Resolver {
	return &Resolver{src: src, log: log}
}

// Resolve returns the RSA key whose kid equals kid exactly. A miss against a cached
// set invalidates the cache and fetches once more, so rotated keys are picked up.
func (r *Resolver) Resolve(ctx context.Context, kid string) (jwk.Key, error) {
	key, err := r.lookup(ctx, kid)
	if errors.Is(err, ErrKeyNotFound) {
		if inv, ok := r.src.(Invalidator); ok {
			r.log.Infow("kid not in cached key set, refetching", "kid", kid)
			if ierr := inv.Invalidate(ctx); ierr != nil {
				r.log.Warnw("key set invalidation failed", "err", ierr)
			}
			key, err = r.lookup(ctx, kid)
		}
	}
	if err != nil {
		return nil, problems.New(problems.KeyResolution, "unable to resolve signing key", err)
	}
	return key, nil
}

func (r *Resolver) lookup(ctx context.Context, kid string) (jwk.Key, error) {
	set, err := r.src.KeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	key, ok := set.LookupKeyID(kid)
	if !ok || kid == "" {
		return nil, ErrKeyNotFound
	}
	if key.KeyType() != jwa.RSA {
		return nil, ErrNotRSA
	}
	return key, nil
}
