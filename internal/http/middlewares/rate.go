package middlewares

import (
	"net/http"
	"strconv"

	httperrors "github.com/veloway-app/authsvc/internal/http/errors"
	"github.com/veloway-app/authsvc/internal/observability/logger"
	"github.com/veloway-app/authsvc/internal/rate"
)

// IPPathRateKey genera la clave IP + path. Separa los límites por endpoint
// (login vs social) sin depender del body.
func IPPathRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// WithRateLimit aplica el limiter al handler. Fail-open: si el limiter
// falla (redis caído), el request pasa.
func WithRateLimit(limiter rate.Limiter, keyFn func(*http.Request) string) Middleware {
	if keyFn == nil {
		keyFn = IPPathRateKey
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter error", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				httperrors.WriteError(w, httperrors.ErrTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
