// Package idptest runs a throwaway identity provider for tests: an RSA signing key,
// a JWKS endpoint serving its public half and a token signer.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"
)

const Audience = "api://test-client"

type Provider struct {
	Server *httptest.Server
	Key    jwk.Key // private
	Public jwk.Set

	hits atomic.Int32
	mu   sync.RWMutex
}

// New starts a JWKS server publishing one RS256 key under kid.
func New(t *testing.T, kid string) *Provider {
	t.Helper()
	p := &Provider{Key: NewKey(t, kid)}
	pub, err := p.Key.PublicKey()
	require.NoError(t, err)
	p.Public = jwk.NewSet()
	require.NoError(t, p.Public.AddKey(pub))

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p.hits.Add(1)
		p.mu.RLock()
		defer p.mu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Public)
	}))
	t.Cleanup(p.Server.Close)
	return p
}

// NewKey generates a private RS256 JWK with the given kid.
func NewKey(t *testing.T, kid string) jwk.Key {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, kid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	return key
}

// URL is the JWKS endpoint.
func (p *Provider) URL() string { return p.Server.URL + "/discovery/v2.0/keys" }

// Hits counts JWKS requests served.
func (p *Provider) Hits() int { return int(p.hits.Load()) }

// Rotate publishes key in place of the current set.
func (p *Provider) Rotate(t *testing.T, key jwk.Key) {
	t.Helper()
	pub, err := key.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	p.mu.Lock()
	p.Key, p.Public = key, set
	p.mu.Unlock()
}

// Claims returns a valid claim set for identity.
func Claims(identity string) map[string]any {
	now := time.Now()
	return map[string]any{
		"aud":                Audience,
		"iss":                "https://login.microsoftonline.com/test-tenant/v2.0",
		"iat":                now.Unix(),
		"nbf":                now.Add(-time.Minute).Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"preferred_username": identity,
	}
}

// Sign signs claims with key as a compact RS256 JWS.
func Sign(t *testing.T, key jwk.Key, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	hdr := jws.NewHeaders()
	require.NoError(t, hdr.Set(jws.TypeKey, "JWT"))
	require.NoError(t, hdr.Set(jws.KeyIDKey, key.KeyID()))
	signed, err := jws.Sign(payload, jws.WithKey(jwa.RS256, key, jws.WithProtectedHeaders(hdr)))
	require.NoError(t, err)
	return string(signed)
}

// Token signs claims with the provider's current key.
func (p *Provider) Token(t *testing.T, claims map[string]any) string {
	t.Helper()
	p.mu.RLock()
	key := p.Key
	p.mu.RUnlock()
	return Sign(t, key, claims)
}
