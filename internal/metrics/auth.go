// Package metrics defines the Prometheus metrics of the auth core. The auth
// service records through the Recorder interface; recording is fire-and-forget
// and must never fail or block the login path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the observability hook consumed by the auth service.
type Recorder interface {
	LoginAttempt(provider string)
	LoginSuccess(provider string)
	LoginFailure(provider, cause string)
	AutoLink(provider string)
	Registration(provider string)
	TokenIssued(kind string)
	TokenRevoked()
}

var (
	loginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Intentos de login por proveedor",
	}, []string{"provider"})

	loginSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_success_total",
		Help: "Logins exitosos por proveedor",
	}, []string{"provider"})

	loginFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_failures_total",
		Help: "Logins fallidos por proveedor y causa",
	}, []string{"provider", "cause"})

	autoLinks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_autolink_total",
		Help: "Identidades externas auto-vinculadas a cuentas existentes",
	}, []string{"provider"})

	registrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_registrations_total",
		Help: "Cuentas nuevas creadas vía OAuth",
	}, []string{"provider"})

	tokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Tokens emitidos por tipo (access|refresh)",
	}, []string{"kind"})

	tokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_revoked_total",
		Help: "Tokens agregados a la blacklist",
	})
)

// Register registers the auth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		loginAttempts, loginSuccess, loginFailures, autoLinks, registrations, tokensIssued, tokensRevoked,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// PromRecorder implements Recorder on the package counters.
type PromRecorder struct{}

var _ Recorder = PromRecorder{}

func (PromRecorder) LoginAttempt(provider string) {
	loginAttempts.WithLabelValues(provider).Inc()
}

func (PromRecorder) LoginSuccess(provider string) {
	loginSuccess.WithLabelValues(provider).Inc()
}

func (PromRecorder) LoginFailure(provider, cause string) {
	loginFailures.WithLabelValues(provider, cause).Inc()
}

func (PromRecorder) AutoLink(provider string) {
	autoLinks.WithLabelValues(provider).Inc()
}

func (PromRecorder) Registration(provider string) {
	registrations.WithLabelValues(provider).Inc()
}

func (PromRecorder) TokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

func (PromRecorder) TokenRevoked() {
	tokensRevoked.Inc()
}

// Noop descarta todas las métricas. Útil en tests.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) LoginAttempt(string)         {}
func (Noop) LoginSuccess(string)         {}
func (Noop) LoginFailure(string, string) {}
func (Noop) AutoLink(string)             {}
func (Noop) Registration(string)         {}
func (Noop) TokenIssued(string)          {}
func (Noop) TokenRevoked()               {}
