package middlewares

import (
	"fmt"
	"net/http"
	"runtime/debug"

	httperrors "github.com/veloway-app/authsvc/internal/http/errors"
	"github.com/veloway-app/authsvc/internal/observability/logger"
)

// WithRecover convierte un panic del handler en un 500 con el envelope
// estándar, logueando el stack.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.String("panic", fmt.Sprint(rec)),
						logger.String("stack", string(debug.Stack())),
					)
					httperrors.WriteError(w, httperrors.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
