// Package handler exposes the command handoff endpoints: request, approve,
// deny, cancel, and the commander's pending-request list.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"incident-command-plane/internal/handoff/domain"
	"incident-command-plane/internal/handoff/service"
	"incident-command-plane/internal/platform/rbac"
	"incident-command-plane/internal/server/httpapi"
)

// Handler serves the handoff routes.
type Handler struct {
	handoffs *service.Service
}

// NewHandler returns the handoff handler.
func NewHandler(handoffs *service.Service) *Handler {
	return &Handler{handoffs: handoffs}
}

// Routes returns the handler's route table.
func (h *Handler) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodPost, Pattern: "/v1/incidents/{id}/command-requests", Handler: h.request},
		{Method: http.MethodGet, Pattern: "/v1/command-requests", Handler: h.listPending},
		{Method: http.MethodPost, Pattern: "/v1/command-requests/{id}/approve", Handler: h.approve},
		{Method: http.MethodPost, Pattern: "/v1/command-requests/{id}/deny", Handler: h.deny},
		{Method: http.MethodDelete, Pattern: "/v1/command-requests/{id}", Handler: h.cancel},
	}
}

type requestResponse struct {
	ID                 string     `json:"id"`
	IncidentID         string     `json:"incident_id"`
	TenantID           string     `json:"tenant_id"`
	RequesterUserID    string     `json:"requester_user_id"`
	CurrentCommanderID string     `json:"current_commander_id"`
	Status             string     `json:"status"`
	RequestedAt        time.Time  `json:"requested_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	req, err := h.handoffs.Request(r.Context(), chi.URLParam(r, "id"), ident.SessionID, ident.UserID, ident.TenantID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toRequestResponse(req))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	reqs, err := h.handoffs.ListPendingForCommander(r.Context(), ident.TenantID, ident.UserID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	out := make([]requestResponse, 0, len(reqs))
	for _, cr := range reqs {
		out = append(out, toRequestResponse(cr))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.handoffs.Approve(r.Context(), chi.URLParam(r, "id"), ident.UserID, ident.TenantID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.handoffs.Deny(r.Context(), chi.URLParam(r, "id"), ident.UserID, ident.TenantID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.handoffs.Cancel(r.Context(), chi.URLParam(r, "id"), ident.UserID, ident.TenantID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func toRequestResponse(cr *domain.CommandRequest) requestResponse {
	return requestResponse{
		ID:                 cr.ID,
		IncidentID:         cr.IncidentID,
		TenantID:           cr.TenantID,
		RequesterUserID:    cr.RequesterUserID,
		CurrentCommanderID: cr.CurrentCommanderID,
		Status:             string(cr.Status),
		RequestedAt:        cr.RequestedAt,
		ResolvedAt:         cr.ResolvedAt,
	}
}
