// Package handler exposes the auth endpoints (login, refresh, logout). These
// are the only public routes besides health.
package handler

import (
	"errors"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/identity/service"
	"incident-command-plane/internal/server/httpapi"
)

// Handler serves the auth routes.
type Handler struct {
	auth *service.AuthService
}

// NewHandler returns the auth handler.
func NewHandler(auth *service.AuthService) *Handler {
	return &Handler{auth: auth}
}

// Routes returns the handler's route table.
func (h *Handler) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodPost, Pattern: "/v1/auth/login", Handler: h.login},
		{Method: http.MethodPost, Pattern: "/v1/auth/refresh", Handler: h.refresh},
		{Method: http.MethodPost, Pattern: "/v1/auth/logout", Handler: h.logout},
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
	LicenseTier  string    `json:"license_tier"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpapi.WriteError(w, authError(err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAuthResponse(res))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpapi.WriteError(w, authError(err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAuthResponse(res))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		httpapi.WriteError(w, authError(err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func toAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		SessionID:    res.SessionID,
		UserID:       res.UserID,
		TenantID:     res.TenantID,
		LicenseTier:  res.LicenseTier,
	}
}

// authError keeps credential failures unauthenticated and passes service
// status errors (e.g. admission capacity denials) through unchanged.
func authError(err error) error {
	if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrInvalidRefreshToken) {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Errorf(codes.Internal, "auth: %v", err)
}
