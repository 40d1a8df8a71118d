// Package handler exposes the session endpoints: heartbeat, end, standing
// check, and the tenant session list.
package handler

import (
	"net/http"
	"time"

	"incident-command-plane/internal/platform/rbac"
	"incident-command-plane/internal/server/httpapi"
	"incident-command-plane/internal/session/domain"
	"incident-command-plane/internal/session/service"
)

// Handler serves the session routes.
type Handler struct {
	sessions *service.Service
}

// NewHandler returns the session handler.
func NewHandler(sessions *service.Service) *Handler {
	return &Handler{sessions: sessions}
}

// Routes returns the handler's route table.
func (h *Handler) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodPost, Pattern: "/v1/sessions/heartbeat", Handler: h.heartbeat},
		{Method: http.MethodPost, Pattern: "/v1/sessions/end", Handler: h.end},
		{Method: http.MethodGet, Pattern: "/v1/sessions/status", Handler: h.status},
		{Method: http.MethodGet, Pattern: "/v1/sessions", Handler: h.list},
	}
}

type sessionResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
	LoginAt      time.Time `json:"login_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.sessions.Heartbeat(r.Context(), ident.SessionID, ident.UserID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.sessions.End(r.Context(), ident.SessionID, ident.UserID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	res, err := h.sessions.CheckStatus(r.Context(), ident.SessionID, ident.UserID, ident.TenantID, ident.LicenseTier)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, statusResponse{Status: string(res.Status), Message: res.Message})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	sessions, err := h.sessions.ListByTenant(r.Context(), ident.TenantID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		UserID:       s.UserID,
		TenantID:     s.TenantID,
		LoginAt:      s.LoginAt,
		LastActiveAt: s.LastActiveAt,
	}
}
