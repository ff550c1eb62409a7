// Package oauth defines the provider-adapter contract of the federated login
// flow: each external identity provider (Google, Apple) implements Provider
// and returns a normalized Identity, so the rest of the auth core never sees
// provider-specific protocol details.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Identity es el resultado normalizado de verificar la aserción de un
// proveedor externo. Efímera: se consume una vez por login, nunca se persiste.
type Identity struct {
	Provider      string // "google" | "apple"
	SubjectID     string // stable per user per provider
	Email         string
	EmailVerified bool // providers that omit the flag report false
	Name          string
	GivenName     string
	FamilyName    string
}

// Provider exchanges an authorization code for a verified Identity.
type Provider interface {
	Name() string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Identity, error)
}

// ErrorKind clasifica las fallas del adapter.
type ErrorKind string

const (
	// KindNetwork: fallo de conexión o 5xx del proveedor. Retryable.
	KindNetwork ErrorKind = "network"
	// KindRejectedCode: el proveedor rechazó el code (4xx). Nunca se
	// reintenta: un code inválido o usado jamás va a funcionar.
	KindRejectedCode ErrorKind = "rejected_code"
	// KindInvalidAssertion: la aserción de identidad no pasó la
	// verificación (firma, issuer, audience o expiración).
	KindInvalidAssertion ErrorKind = "invalid_assertion"
)

// ProviderError envuelve cualquier falla del adapter con su clasificación.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("oauth %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewError construye un ProviderError.
func NewError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// Retryable reporta si err es una falla de red transitoria del proveedor.
func Retryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindNetwork
}

// KindOf extrae la clasificación de err, o "" si no es un ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Registry selecciona el adapter por nombre de proveedor.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry crea un registry con los providers dados.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

// Get retorna el provider por nombre (case-insensitive).
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names lista los proveedores registrados, ordenados.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
