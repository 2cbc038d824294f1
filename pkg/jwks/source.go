// Package jwks resolves identity-provider signing keys by key identifier.
package jwks

import (
	"context"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Source yields the identity provider's current key set.
type Source interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

// Invalidator is implemented by caching sources that can drop their cached set.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Remote fetches the key set over HTTP on every call.
type Remote struct {
	URL    string
	Client *http.Client
}

func NewRemote(url string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{URL: url, Client: client}
}

func (r *Remote) KeySet(ctx context.Context) (jwk.Set, error) {
	return jwk.Fetch(ctx, r.URL, jwk.WithHTTPClient(r.Client))
}
