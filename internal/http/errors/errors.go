// Package errors define el envelope estándar de errores HTTP del servicio.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AppError es la estructura estándar para errores de la aplicación.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa original, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail agrega detalle. Devuelve una COPIA para no mutar las globales.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega la causa original. Devuelve una COPIA.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// FromError convierte un error genérico en AppError; si no lo es, 500.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// WriteError serializa el error como JSON con el status que corresponde.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(appErr)
}

// Errores predefinidos.
var (
	ErrBadRequest = &AppError{
		Code: "bad_request", Message: "Invalid request", HTTPStatus: http.StatusBadRequest,
	}
	ErrUnauthorized = &AppError{
		Code: "unauthorized", Message: "Authentication failed", HTTPStatus: http.StatusUnauthorized,
	}
	ErrNotFound = &AppError{
		Code: "not_found", Message: "Resource not found", HTTPStatus: http.StatusNotFound,
	}
	ErrTooManyRequests = &AppError{
		Code: "rate_limited", Message: "Too many requests", HTTPStatus: http.StatusTooManyRequests,
	}
	ErrUpstream = &AppError{
		Code: "provider_unavailable", Message: "Identity provider unavailable", HTTPStatus: http.StatusBadGateway,
	}
	ErrInternal = &AppError{
		Code: "internal_error", Message: "Internal server error", HTTPStatus: http.StatusInternalServerError,
	}
)
