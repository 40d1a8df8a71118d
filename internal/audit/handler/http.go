// Package handler exposes the audit trail read endpoint.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"incident-command-plane/internal/audit/domain"
	"incident-command-plane/internal/audit/repository"
	"incident-command-plane/internal/platform/rbac"
	"incident-command-plane/internal/server/httpapi"
)

const defaultListLimit = 100

// Handler serves the audit routes.
type Handler struct {
	repo repository.Repository
}

// NewHandler returns the audit handler.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes returns the handler's route table.
func (h *Handler) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodGet, Pattern: "/v1/audit", Handler: h.list},
	}
}

type auditResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := h.repo.ListByTenant(r.Context(), ident.TenantID, limit)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditResponse(e))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func toAuditResponse(e *domain.AuditLog) auditResponse {
	return auditResponse{
		ID:        e.ID,
		TenantID:  e.TenantID,
		UserID:    e.UserID,
		Action:    e.Action,
		Resource:  e.Resource,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}
