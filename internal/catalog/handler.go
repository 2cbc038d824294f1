// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pipelinehub/pkg/middleware"
	"pipelinehub/pkg/problems"
)

// RegisterRoutes mounts the pipeline listing behind auth. /api/GetPipelines keeps the
// path existing clients already call.
func RegisterRoutes(r chi.Router, svc *Service, auth func(http.Handler) http.Handler, log *zap.SugaredLogger, strict bool) {
	r.Group(func(r chi.Router) {
		r.Use(auth)
		h := listHandler(svc, log, strict)
		r.Get("/api/pipelines", h)
		r.Get("/api/GetPipelines", h)
	})
}

func listHandler(svc *Service, log *zap.SugaredLogger, strict bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		caller, ok := middleware.CallerFrom(req.Context())
		if !ok {
			middleware.Fail(w, req, log, problems.New(problems.MissingCredentials, "Missing Authorization header", errors.New("no authenticated caller")), strict)
			return
		}
		list, err := svc.List(req.Context(), caller.TenantID)
		if err != nil {
			middleware.Fail(w, req, log, err, strict)
			return
		}
		buf, err := json.Marshal(list)
		if err != nil {
			middleware.Fail(w, req, log, err, strict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf)
	}
}
