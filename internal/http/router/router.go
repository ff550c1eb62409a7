// Package router arma el árbol de rutas HTTP del servicio.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veloway-app/authsvc/internal/cache"
	authctrl "github.com/veloway-app/authsvc/internal/http/controllers/auth"
	mw "github.com/veloway-app/authsvc/internal/http/middlewares"
	"github.com/veloway-app/authsvc/internal/rate"
	"github.com/veloway-app/authsvc/internal/store/core"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Social  *authctrl.SocialController
	Session *authctrl.SessionController

	Repo  core.Repository
	Cache cache.Client

	// LoginLimiter protege los endpoints de login. nil = sin límite.
	LoginLimiter rate.Limiter

	// Metrics expone /metrics. nil = registry global por defecto.
	Metrics *prometheus.Registry
}

// New construye el router con el middleware stack completo.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyz(d.Repo, d.Cache))

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/v1/auth", func(r chi.Router) {
		if d.LoginLimiter != nil {
			r.Use(mw.WithRateLimit(d.LoginLimiter, mw.IPPathRateKey))
		}
		r.Post("/social/{provider}", d.Social.Authenticate)
		r.Post("/login", d.Session.Login)
		r.Post("/refresh", d.Session.Refresh)
		r.Post("/logout", d.Session.Logout)
	})

	return r
}

// readyz chequea las dependencias duras: store y cache.
func readyz(repo core.Repository, c cache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if repo != nil {
			if err := repo.Ping(ctx); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if c != nil {
			if err := c.Ping(ctx); err != nil {
				http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
