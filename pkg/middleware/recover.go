// pkg/middleware/recover.go
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"pipelinehub/pkg/problems"
)

// Recover turns a panic into the standard error response. Once the handler has started
// the response only the log entry is written.
func Recover(log *zap.SugaredLogger, strict bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Errorw("panic", "reqid", RequestIDFrom(r.Context()), "err", rec, "status_sent", sw.code, "stack", string(debug.Stack()))
					if sw.code == 0 {
						problems.Write(w, problems.New(problems.Unknown, "internal error", nil), strict)
					}
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
