package jwks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pipelinehub/internal/idptest"
	"pipelinehub/pkg/problems"
)

func TestRemoteResolveFetchesEveryCall(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	res := NewResolver(NewRemote(idp.URL(), nil), zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		key, err := res.Resolve(context.Background(), "kid-1")
		require.NoError(t, err)
		assert.Equal(t, "kid-1", key.KeyID())
		assert.Equal(t, jwa.RSA, key.KeyType())
	}
	assert.Equal(t, 3, idp.Hits())
}

func TestResolveUnknownKid(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	res := NewResolver(NewRemote(idp.URL(), nil), zap.NewNop().Sugar())

	key, err := res.Resolve(context.Background(), "kid-2")

	assert.Nil(t, key)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, problems.KeyResolution, problems.KindOf(err))
}

func TestResolveEmptyKid(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	res := NewResolver(NewRemote(idp.URL(), nil), zap.NewNop().Sugar())

	_, err := res.Resolve(context.Background(), "")

	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestResolveFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	res := NewResolver(NewRemote(srv.URL, srv.Client()), zap.NewNop().Sugar())

	_, err := res.Resolve(context.Background(), "kid-1")

	require.Error(t, err)
	assert.Equal(t, problems.KeyResolution, problems.KindOf(err))
}

func TestResolveRejectsNonRSAKey(t *testing.T) {
	sym, err := jwk.FromRaw([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, sym.Set(jwk.KeyIDKey, "hmac"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(sym))

	res := NewResolver(staticSource{set}, zap.NewNop().Sugar())
	_, err = res.Resolve(context.Background(), "hmac")

	assert.ErrorIs(t, err, ErrNotRSA)
}

func TestMemoryCache(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	cache := NewMemoryCache(NewRemote(idp.URL(), nil), idp.URL(), time.Hour)
	res := NewResolver(cache, zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		_, err := res.Resolve(context.Background(), "kid-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, idp.Hits())

	t.Run("refetches on unknown kid after rotation", func(t *testing.T) {
		idp.Rotate(t, idptest.NewKey(t, "kid-2"))

		key, err := res.Resolve(context.Background(), "kid-2")

		require.NoError(t, err)
		assert.Equal(t, "kid-2", key.KeyID())
		assert.Equal(t, 2, idp.Hits())
	})

	t.Run("unknown kid still fails after refetch", func(t *testing.T) {
		_, err := res.Resolve(context.Background(), "kid-3")

		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, 3, idp.Hits())
	})
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	idp := idptest.New(t, "kid-1")
	cache := NewRedisCache(NewRemote(idp.URL(), nil), rdb, "jwks:test", time.Hour)
	res := NewResolver(cache, zap.NewNop().Sugar())

	_, err := res.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("jwks:test"))
	assert.Equal(t, time.Hour, mr.TTL("jwks:test"))

	// a second replica sharing the same redis does not hit the provider
	other := NewResolver(NewRedisCache(NewRemote(idp.URL(), nil), rdb, "jwks:test", time.Hour), zap.NewNop().Sugar())
	key, err := other.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, "kid-1", key.KeyID())
	assert.Equal(t, 1, idp.Hits())

	t.Run("expired entry is refetched", func(t *testing.T) {
		mr.FastForward(2 * time.Hour)

		_, err := res.Resolve(context.Background(), "kid-1")

		require.NoError(t, err)
		assert.Equal(t, 2, idp.Hits())
	})

	t.Run("falls back to provider when redis is down", func(t *testing.T) {
		mr.Close()

		_, err := res.Resolve(context.Background(), "kid-1")

		require.NoError(t, err)
		assert.Equal(t, 3, idp.Hits())
	})
}

type staticSource struct{ set jwk.Set }

func (s staticSource) KeySet(context.Context) (jwk.Set, error) { return s.set, nil }
