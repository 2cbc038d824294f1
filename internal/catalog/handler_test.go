package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pipelinehub/internal/idptest"
	"pipelinehub/pkg/jwks"
	"pipelinehub/pkg/middleware"
	"pipelinehub/pkg/pipelines"
	"pipelinehub/pkg/token"
)

func strp(s string) *string { return &s }

func newRouter(t *testing.T, idp *idptest.Provider, store pipelines.Store, strict bool) http.Handler {
	t.Helper()
	log := zap.NewNop().Sugar()
	keys := jwks.NewResolver(jwks.NewRemote(idp.URL(), nil), log)
	v := &token.Validator{Audience: idptest.Audience}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log, strict))
	RegisterRoutes(r, NewService(store, log), middleware.Authenticate(keys, v, log, strict), log, strict)
	return r
}

func get(h http.Handler, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListPipelinesEndToEnd(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	store := pipelines.NewMemoryStore(zap.NewNop().Sugar(), []pipelines.Record{
		{PartitionKey: "acme", RowKey: "1", PipelineName: strp("ETL1"), PipelineLink: strp("https://x/1"), PipelineDescription: strp("desc")},
		{PartitionKey: "globex", RowKey: "1", PipelineName: strp("Secret"), PipelineLink: strp("https://y/1"), PipelineDescription: strp("not yours")},
	})
	h := newRouter(t, idp, store, false)

	for _, path := range []string{"/api/pipelines", "/api/GetPipelines"} {
		t.Run(path, func(t *testing.T) {
			rec := get(h, path, "Bearer "+idp.Token(t, idptest.Claims("user@acme.com")))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, `[{"name":"ETL1","link":"https://x/1","description":"desc","inputFieldInstructions":{}}]`, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		})
	}
}

func TestListPipelinesInstructions(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	store := pipelines.NewMemoryStore(zap.NewNop().Sugar(), []pipelines.Record{
		{PartitionKey: "acme", RowKey: "1", PipelineName: strp("ETL1"), InputFieldInstructions: strp(`{"field1":"enter name"}`)},
		{PartitionKey: "acme", RowKey: "2", PipelineName: strp("Broken"), InputFieldInstructions: strp(`{not json`)},
	})
	h := newRouter(t, idp, store, false)

	rec := get(h, "/api/pipelines", "Bearer "+idp.Token(t, idptest.Claims("user@acme.com")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name":"ETL1","link":null,"description":null,"inputFieldInstructions":{"field1":"enter name"}},
		{"name":"Broken","link":null,"description":null,"inputFieldInstructions":{}}
	]`, rec.Body.String())
}

func TestListPipelinesEmptyTenant(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	h := newRouter(t, idp, pipelines.NewMemoryStore(zap.NewNop().Sugar(), nil), false)

	rec := get(h, "/api/pipelines", "Bearer "+idp.Token(t, idptest.Claims("user@acme.com")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestListPipelinesFailures(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	store := pipelines.NewMemoryStore(zap.NewNop().Sugar(), nil)

	expired := idptest.Claims("user@acme.com")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	noIdentity := idptest.Claims("")
	delete(noIdentity, "preferred_username")

	tests := []struct {
		name       string
		authz      string
		strict     bool
		wantStatus int
		wantBody   string
	}{
		{name: "missing header", wantStatus: http.StatusInternalServerError, wantBody: "An error occurred: Missing Authorization header"},
		{name: "wrong scheme", authz: "Basic Zm9vOmJhcg==", wantStatus: http.StatusInternalServerError, wantBody: "An error occurred: Malformed Authorization header"},
		{name: "garbage token", authz: "Bearer garbage", wantStatus: http.StatusInternalServerError, wantBody: "An error occurred: invalid token: malformed token"},
		{name: "expired token", authz: "Bearer " + idp.Token(t, expired), wantStatus: http.StatusInternalServerError, wantBody: "An error occurred: invalid token: token expired"},
		{name: "unknown signing key", authz: "Bearer " + idptest.Sign(t, idptest.NewKey(t, "kid-x"), idptest.Claims("user@acme.com")), wantStatus: http.StatusInternalServerError, wantBody: "An error occurred: unable to resolve signing key"},
		{name: "no identity claim", authz: "Bearer " + idp.Token(t, noIdentity), wantStatus: http.StatusInternalServerError, wantBody: "An error occurred: Failed to extract identity from token"},
		{name: "identity without domain dot", authz: "Bearer " + idp.Token(t, idptest.Claims("user@localhost")), wantStatus: http.StatusInternalServerError, wantBody: "An error occurred: Failed to extract company name from email"},
		{name: "strict missing header", strict: true, wantStatus: http.StatusUnauthorized, wantBody: "An error occurred: Missing Authorization header"},
		{name: "strict expired", strict: true, authz: "Bearer " + idp.Token(t, expired), wantStatus: http.StatusUnauthorized, wantBody: "An error occurred: invalid token: token expired"},
		{name: "strict tenant", strict: true, authz: "Bearer " + idp.Token(t, idptest.Claims("notanemail")), wantStatus: http.StatusForbidden, wantBody: "An error occurred: Failed to extract company name from email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newRouter(t, idp, store, tt.strict), "/api/pipelines", tt.authz)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

type failingStore struct{ err error }

func (f failingStore) ListByTenant(context.Context, string) ([]pipelines.Record, error) {
	return nil, f.err
}

func TestListPipelinesStorageFailure(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	h := newRouter(t, idp, failingStore{errors.New("AuthorizationPermissionMismatch")}, false)

	rec := get(h, "/api/pipelines", "Bearer "+idp.Token(t, idptest.Claims("user@acme.com")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An error occurred: Failed to query pipelines", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "AuthorizationPermissionMismatch")

	strict := get(newRouter(t, idp, failingStore{errors.New("timeout")}, true), "/api/pipelines", "Bearer "+idp.Token(t, idptest.Claims("user@acme.com")))
	assert.Equal(t, http.StatusBadGateway, strict.Code)
}

func TestListPipelinesKeySetUnavailable(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded at 10.1.2.3", http.StatusBadGateway)
	}))
	defer down.Close()

	log := zap.NewNop().Sugar()
	r := chi.NewRouter()
	auth := middleware.Authenticate(jwks.NewResolver(jwks.NewRemote(down.URL+"/discovery/v2.0/keys", down.Client()), log), &token.Validator{Audience: idptest.Audience}, log, false)
	RegisterRoutes(r, NewService(pipelines.NewMemoryStore(log, nil), log), auth, log, false)

	rec := get(r, "/api/pipelines", "Bearer "+idptest.Sign(t, idptest.NewKey(t, "kid-1"), idptest.Claims("user@acme.com")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An error occurred: unable to resolve signing key", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), down.URL)
	assert.NotContains(t, rec.Body.String(), "10.1.2.3")
}

func TestListPipelinesTenantCasePreserved(t *testing.T) {
	idp := idptest.New(t, "kid-1")
	store := pipelines.NewMemoryStore(zap.NewNop().Sugar(), []pipelines.Record{
		{PartitionKey: "Acme", RowKey: "1", PipelineName: strp("ETL1")},
		{PartitionKey: "acme", RowKey: "1", PipelineName: strp("lowercase tenant")},
	})
	h := newRouter(t, idp, store, false)

	rec := get(h, "/api/pipelines", "Bearer "+idp.Token(t, idptest.Claims("user@Acme.com")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"ETL1","link":null,"description":null,"inputFieldInstructions":{}}]`, rec.Body.String())
}
