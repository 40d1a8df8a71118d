// Package handler exposes the incident command endpoints: start, take, close,
// reestablish, and the active-incident reads.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"incident-command-plane/internal/incident/domain"
	"incident-command-plane/internal/incident/service"
	"incident-command-plane/internal/platform/rbac"
	"incident-command-plane/internal/server/httpapi"
)

// Handler serves the incident routes.
type Handler struct {
	incidents *service.Service
}

// NewHandler returns the incident handler.
func NewHandler(incidents *service.Service) *Handler {
	return &Handler{incidents: incidents}
}

// Routes returns the handler's route table.
func (h *Handler) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodPost, Pattern: "/v1/incidents", Handler: h.start},
		{Method: http.MethodGet, Pattern: "/v1/incidents", Handler: h.list},
		{Method: http.MethodGet, Pattern: "/v1/incidents/{id}", Handler: h.get},
		{Method: http.MethodPost, Pattern: "/v1/incidents/{id}/command", Handler: h.takeCommand},
		{Method: http.MethodPost, Pattern: "/v1/incidents/{id}/command/reestablish", Handler: h.reestablish},
		{Method: http.MethodPost, Pattern: "/v1/incidents/{id}/close", Handler: h.close},
	}
}

type startRequest struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

type incidentResponse struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	Number             string     `json:"number"`
	Name               string     `json:"name"`
	Status             string     `json:"status"`
	CommanderUserID    string     `json:"commander_user_id,omitempty"`
	CommanderSessionID string     `json:"commander_session_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	var req startRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	inc, err := h.incidents.StartIncident(r.Context(), req.Number, req.Name, ident.SessionID, ident.UserID, ident.TenantID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toIncidentResponse(inc))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	incidents, err := h.incidents.ListActive(r.Context(), ident.TenantID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	out := make([]incidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, toIncidentResponse(inc))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	inc, err := h.incidents.Get(r.Context(), chi.URLParam(r, "id"), ident.TenantID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toIncidentResponse(inc))
}

func (h *Handler) takeCommand(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.incidents.TakeCommand(r.Context(), chi.URLParam(r, "id"), ident.SessionID, ident.UserID, ident.TenantID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) reestablish(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.incidents.ReestablishCommand(r.Context(), chi.URLParam(r, "id"), ident.SessionID, ident.UserID, ident.TenantID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if err := h.incidents.CloseIncident(r.Context(), chi.URLParam(r, "id"), ident.UserID, ident.TenantID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, struct{}{})
}

func toIncidentResponse(i *domain.Incident) incidentResponse {
	return incidentResponse{
		ID:                 i.ID,
		TenantID:           i.TenantID,
		Number:             i.Number,
		Name:               i.Name,
		Status:             string(i.Status),
		CommanderUserID:    i.CommanderUserID,
		CommanderSessionID: i.CommanderSessionID,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
		ClosedAt:           i.ClosedAt,
	}
}
