package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dto "github.com/veloway-app/authsvc/internal/http/dto/auth"
	httperrors "github.com/veloway-app/authsvc/internal/http/errors"
	svc "github.com/veloway-app/authsvc/internal/http/services/auth"
	"github.com/veloway-app/authsvc/internal/observability/logger"
)

// SocialController handles the federated login endpoint.
type SocialController struct {
	service *svc.Service
}

// NewSocialController creates a new SocialController.
func NewSocialController(service *svc.Service) *SocialController {
	return &SocialController{service: service}
}

// Authenticate handles POST /v1/auth/social/{provider}
func (c *SocialController) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SocialController.Authenticate"))

	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if provider == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("missing provider"))
		return
	}

	var req dto.SocialLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid json"))
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("code required"))
		return
	}
	if strings.TrimSpace(req.RedirectURI) == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("redirect_uri required"))
		return
	}

	session, err := c.service.AuthenticateWithProvider(ctx, provider, req.Code, req.RedirectURI)
	if err != nil {
		log.Warn("social login failed", logger.Provider(provider), logger.Err(err))
		switch {
		case errors.Is(err, svc.ErrProviderUnknown):
			httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("provider not enabled"))
		case errors.Is(err, svc.ErrEmailNotVerified):
			// El detalle llega al cliente tal cual: la UX necesita saber que
			// debe verificar el email antes de vincular.
			httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail(svc.ErrEmailNotVerified.Error()))
		case errors.Is(err, svc.ErrProviderUnavailable):
			httperrors.WriteError(w, httperrors.ErrUpstream.WithDetail("identity provider unavailable"))
		case errors.Is(err, svc.ErrAuthenticationFailed), errors.Is(err, svc.ErrAccountDisabled):
			httperrors.WriteError(w, httperrors.ErrUnauthorized)
		default:
			httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		}
		return
	}

	writeSession(w, session)
}

func writeSession(w http.ResponseWriter, s *svc.Session) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(dto.SessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.ExpiresIn,
	})
}
