package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	dto "github.com/veloway-app/authsvc/internal/http/dto/auth"
	httperrors "github.com/veloway-app/authsvc/internal/http/errors"
	svc "github.com/veloway-app/authsvc/internal/http/services/auth"
	"github.com/veloway-app/authsvc/internal/observability/logger"
)

// SessionController maneja login por password, refresh y logout.
type SessionController struct {
	service *svc.Service
}

func NewSessionController(service *svc.Service) *SessionController {
	return &SessionController{service: service}
}

// Login handles POST /v1/auth/login
func (c *SessionController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionController.Login"))

	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid json"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("email and password required"))
		return
	}

	session, err := c.service.LoginWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		log.Warn("password login failed", logger.Err(err))
		switch {
		case errors.Is(err, svc.ErrInvalidCredentials), errors.Is(err, svc.ErrAccountDisabled):
			// Misma respuesta para credenciales malas y cuenta desactivada:
			// no filtramos cuál de las dos fue.
			httperrors.WriteError(w, httperrors.ErrUnauthorized)
		default:
			httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		}
		return
	}
	writeSession(w, session)
}

// Refresh handles POST /v1/auth/refresh
func (c *SessionController) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid json"))
		return
	}
	if req.RefreshToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("refresh_token required"))
		return
	}

	session, err := c.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrInvalidRefreshToken), errors.Is(err, svc.ErrAccountDisabled):
			httperrors.WriteError(w, httperrors.ErrUnauthorized)
		default:
			httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		}
		return
	}
	writeSession(w, session)
}

// Logout handles POST /v1/auth/logout
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid json"))
		return
	}
	if req.AccessToken == "" && req.RefreshToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("no tokens to revoke"))
		return
	}

	if err := c.service.Logout(ctx, req.AccessToken, req.RefreshToken); err != nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
